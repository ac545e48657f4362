// Package docs регистрирует OpenAPI-описание API в swag.
// Шаблон ведётся вместе с аннотациями обработчиков, расхождение с маршрутами ловит тест роутера.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/getembeddings": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["embeddings"],
                "summary": "Эмбеддинг изображения",
                "parameters": [
                    {"type": "file", "description": "Изображение", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EmbeddingResponse"}},
                    "400": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "422": {"description": "Изображение не читается", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/upload-and-store": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Загрузка и сохранение товара",
                "parameters": [
                    {"type": "file", "description": "Изображение товара", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Название товара", "name": "product_name", "in": "formData", "required": true},
                    {"type": "string", "description": "Цена, не более двух знаков после точки", "name": "price", "in": "formData", "required": true},
                    {"type": "string", "description": "Продавец", "name": "user_id", "in": "formData"},
                    {"type": "string", "description": "Дополнительные поля (JSON-объект)", "name": "metadata", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.VectorStoreResponse"}},
                    "400": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "502": {"description": "Хранилище или ML-сервис недоступны", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/search": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Поиск похожих товаров",
                "parameters": [
                    {"type": "file", "description": "Изображение-запрос", "name": "file", "in": "formData", "required": true},
                    {"type": "integer", "description": "Количество результатов", "name": "limit", "in": "query"},
                    {"type": "number", "description": "Минимальный скор", "name": "threshold", "in": "query"},
                    {"type": "string", "description": "Пользователь", "name": "user_id", "in": "query"},
                    {"type": "boolean", "description": "Вернуть векторы результатов", "name": "include_vectors", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SimilarImagesResponse"}},
                    "400": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Векторная БД недоступна", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/search-complete": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Поиск похожих товаров с полными данными",
                "parameters": [
                    {"type": "file", "description": "Изображение-запрос", "name": "file", "in": "formData", "required": true},
                    {"type": "integer", "description": "Количество результатов", "name": "limit", "in": "query"},
                    {"type": "number", "description": "Минимальный скор", "name": "threshold", "in": "query"},
                    {"type": "string", "description": "Пользователь", "name": "user_id", "in": "query"},
                    {"type": "boolean", "description": "Вернуть полные векторы", "name": "include_embeddings", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CompleteSimilarityResponse"}},
                    "400": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/list": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Список сохранённых эмбеддингов",
                "parameters": [
                    {"type": "integer", "description": "Размер страницы (1..1000)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Смещение", "name": "offset", "in": "query"},
                    {"type": "boolean", "description": "Вернуть превью векторов", "name": "include_previews", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ListResponse"}},
                    "400": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/retrieve/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Получение эмбеддинга по id",
                "parameters": [
                    {"type": "string", "description": "Id записи (UUID)", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "Вернуть полный вектор", "name": "include_vector", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.RetrieveResponse"}},
                    "400": {"description": "Некорректный id", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Запись не найдена", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/delete/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Удаление эмбеддинга",
                "parameters": [
                    {"type": "string", "description": "Id записи (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.DeleteResponse"}},
                    "404": {"description": "Запись не найдена", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vectors"],
                "summary": "Статистика коллекции",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CollectionStatsResponse"}},
                    "503": {"description": "Векторная БД недоступна", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/vectors/search-history/{user_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "История поиска пользователя",
                "parameters": [
                    {"type": "string", "description": "Пользователь", "name": "user_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Количество записей", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SearchHistoryResponse"}}
                }
            }
        },
        "/vectors/recommendations/{user_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Рекомендации пользователя",
                "parameters": [
                    {"type": "string", "description": "Пользователь", "name": "user_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Количество рекомендаций", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.RecommendationsResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["general"],
                "summary": "Проверка доступности",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {"type": "object", "properties": {"code": {"type": "integer"}, "message": {"type": "string"}}},
        "http.StatsResponse": {"type": "object", "properties": {"min": {"type": "number"}, "max": {"type": "number"}, "mean": {"type": "number"}, "non_zero_count": {"type": "integer"}, "dimensions": {"type": "integer"}}},
        "http.EmbeddingResponse": {"type": "object", "properties": {"id": {"type": "string"}, "filename": {"type": "string"}, "message": {"type": "string"}, "embedding_status": {"type": "string"}, "processing_time": {"type": "number"}, "embeddings": {"type": "array", "items": {"type": "number"}}, "embeddings_preview": {"type": "array", "items": {"type": "number"}}, "embedding_shape": {"type": "array", "items": {"type": "integer"}}, "model_used": {"type": "string"}, "embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}}},
        "http.VectorStoreResponse": {"type": "object", "properties": {"id": {"type": "string"}, "vector_id": {"type": "string"}, "filename": {"type": "string"}, "message": {"type": "string"}, "embedding_status": {"type": "string"}, "vector_stored": {"type": "boolean"}, "processing_time": {"type": "number"}, "embedding_shape": {"type": "array", "items": {"type": "integer"}}, "model_used": {"type": "string"}, "embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}, "asset_url": {"type": "string"}, "asset_path": {"type": "string"}, "asset_uploaded": {"type": "boolean"}, "user_id": {"type": "string"}}},
        "http.SimilarHitResponse": {"type": "object", "properties": {"id": {"type": "string"}, "score": {"type": "number"}, "metadata": {"type": "object"}, "vector": {"type": "array", "items": {"type": "number"}}}},
        "http.SimilarImagesResponse": {"type": "object", "properties": {"query_id": {"type": "string"}, "query_filename": {"type": "string"}, "similar_images": {"type": "array", "items": {"$ref": "#/definitions/http.SimilarHitResponse"}}, "search_time": {"type": "number"}, "total_found": {"type": "integer"}, "similarity_threshold": {"type": "number"}, "model_used": {"type": "string"}, "search_history_id": {"type": "string"}}},
        "http.CompleteHitResponse": {"type": "object", "properties": {"id": {"type": "string"}, "score": {"type": "number"}, "metadata": {"type": "object"}, "embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}, "embeddings_preview": {"type": "array", "items": {"type": "number"}}, "embedding_full": {"type": "array", "items": {"type": "number"}}, "error": {"type": "string"}}},
        "http.CompleteSimilarityResponse": {"type": "object", "properties": {"query_id": {"type": "string"}, "query_filename": {"type": "string"}, "query_embedding_preview": {"type": "array", "items": {"type": "number"}}, "query_embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}, "query_embedding": {"type": "array", "items": {"type": "number"}}, "embedding_shape": {"type": "array", "items": {"type": "integer"}}, "model_used": {"type": "string"}, "search_time": {"type": "number"}, "total_similar_found": {"type": "integer"}, "similarity_threshold": {"type": "number"}, "similar_embeddings": {"type": "array", "items": {"$ref": "#/definitions/http.CompleteHitResponse"}}, "message": {"type": "string"}, "search_history_id": {"type": "string"}}},
        "http.RetrieveResponse": {"type": "object", "properties": {"vector_id": {"type": "string"}, "filename": {"type": "string"}, "embedding_status": {"type": "string"}, "vector_found": {"type": "boolean"}, "embeddings_preview": {"type": "array", "items": {"type": "number"}}, "embedding_full": {"type": "array", "items": {"type": "number"}}, "embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}, "metadata": {"type": "object"}, "model_used": {"type": "string"}}},
        "http.ListItemResponse": {"type": "object", "properties": {"id": {"type": "string"}, "metadata": {"type": "object"}, "embeddings_preview": {"type": "array", "items": {"type": "number"}}, "embedding_stats": {"$ref": "#/definitions/http.StatsResponse"}}},
        "http.ListResponse": {"type": "object", "properties": {"embeddings": {"type": "array", "items": {"$ref": "#/definitions/http.ListItemResponse"}}, "total_returned": {"type": "integer"}, "limit": {"type": "integer"}, "offset": {"type": "integer"}}},
        "http.DeleteResponse": {"type": "object", "properties": {"vector_id": {"type": "string"}, "deleted": {"type": "boolean"}, "message": {"type": "string"}}},
        "http.CollectionStatsResponse": {"type": "object", "properties": {"collection_name": {"type": "string"}, "vectors_count": {"type": "integer"}, "indexed_vectors_count": {"type": "integer"}, "points_count": {"type": "integer"}, "status": {"type": "string"}}},
        "http.SearchHistoryItemResponse": {"type": "object", "properties": {"id": {"type": "string"}, "search_query_filename": {"type": "string"}, "similar_results_count": {"type": "integer"}, "search_timestamp": {"type": "string"}}},
        "http.SearchHistoryResponse": {"type": "object", "properties": {"user_id": {"type": "string"}, "searches": {"type": "array", "items": {"$ref": "#/definitions/http.SearchHistoryItemResponse"}}, "total": {"type": "integer"}}},
        "http.RecommendationSourceResponse": {"type": "object", "properties": {"search_id": {"type": "string"}, "search_filename": {"type": "string"}, "searched_at": {"type": "string"}}},
        "http.RecommendationResponse": {"type": "object", "properties": {"id": {"type": "string"}, "score": {"type": "number"}, "metadata": {"type": "object"}, "source": {"$ref": "#/definitions/http.RecommendationSourceResponse"}}},
        "http.RecommendationsResponse": {"type": "object", "properties": {"user_id": {"type": "string"}, "recommendations": {"type": "array", "items": {"$ref": "#/definitions/http.RecommendationResponse"}}, "total": {"type": "integer"}, "seeds_used": {"type": "integer"}, "history_size": {"type": "integer"}}},
        "http.HealthResponse": {"type": "object", "properties": {"status": {"type": "string"}, "timestamp": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Visual Search API",
	Description:      "Хранение эмбеддингов изображений товаров, поиск похожих и рекомендации по истории поиска.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
