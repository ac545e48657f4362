package converter

import "github.com/DRSN-tech/visual-search/internal/usecase"

func ToRedisModel(entity *usecase.Embedding) *EmbeddingRedisModel {
	if entity == nil {
		return nil
	}

	return &EmbeddingRedisModel{
		Vector:       entity.Vector,
		Shape:        entity.Shape,
		ModelVersion: entity.ModelVersion,
	}
}

func ToUseCase(model *EmbeddingRedisModel) *usecase.Embedding {
	if model == nil {
		return nil
	}

	return usecase.NewEmbedding(model.Vector, model.Shape, model.ModelVersion)
}
