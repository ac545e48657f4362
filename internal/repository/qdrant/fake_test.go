package qdrant

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// fakeClient: косинусный движок в памяти с тем же набором методов, что у *qdrant.Client.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	calls       map[string]int
	fail        map[string]error
	lastGet     *qdrant.GetPoints
}

type fakeCollection struct {
	size     uint64
	distance qdrant.Distance
	points   []*fakePoint // в порядке вставки, Scroll без order_by отдаёт их так же
	schema   map[string]*qdrant.PayloadSchemaInfo
}

type fakePoint struct {
	id      string
	vector  []float32
	payload map[string]*qdrant.Value
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: make(map[string]*fakeCollection),
		calls:       make(map[string]int),
		fail:        make(map[string]error),
	}
}

func (f *fakeClient) call(method string) error {
	f.calls[method]++
	return f.fail[method]
}

func (f *fakeClient) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.collections[collection]
	if !ok {
		return 0
	}
	return len(c.points)
}

func (f *fakeClient) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("CollectionExists"); err != nil {
		return false, err
	}
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeClient) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("CreateCollection"); err != nil {
		return err
	}
	if _, ok := f.collections[req.GetCollectionName()]; ok {
		return errors.New("Wrong input: Collection already exists!")
	}

	params := req.GetVectorsConfig().GetParams()
	f.collections[req.GetCollectionName()] = &fakeCollection{
		size:     params.GetSize(),
		distance: params.GetDistance(),
		schema:   make(map[string]*qdrant.PayloadSchemaInfo),
	}
	return nil
}

func (f *fakeClient) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("GetCollectionInfo"); err != nil {
		return nil, err
	}
	c, ok := f.collections[name]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	schema := make(map[string]*qdrant.PayloadSchemaInfo, len(c.schema))
	for k, v := range c.schema {
		schema[k] = v
	}

	return &qdrant.CollectionInfo{
		Status:              qdrant.CollectionStatus_Green,
		PointsCount:         qdrant.PtrOf(uint64(len(c.points))),
		IndexedVectorsCount: qdrant.PtrOf(uint64(0)),
		PayloadSchema:       schema,
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     c.size,
					Distance: c.distance,
				}),
			},
		},
	}, nil
}

func (f *fakeClient) CreateFieldIndex(_ context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("CreateFieldIndex"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}
	dataType := qdrant.PayloadSchemaType_Keyword
	if req.GetFieldType() == qdrant.FieldType_FieldTypeDatetime {
		dataType = qdrant.PayloadSchemaType_Datetime
	}
	c.schema[req.GetFieldName()] = &qdrant.PayloadSchemaInfo{DataType: dataType}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("Upsert"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	for _, p := range req.GetPoints() {
		vec := inputVector(p.GetVectors().GetVector())
		if uint64(len(vec)) != c.size {
			return nil, errors.New("Wrong input: Vector dimension error")
		}
		id := p.GetId().GetUuid()
		stored := &fakePoint{id: id, vector: append([]float32(nil), vec...), payload: p.GetPayload()}

		replaced := false
		for i, existing := range c.points {
			if existing.id == id {
				c.points[i] = stored
				replaced = true
			}
		}
		if !replaced {
			c.points = append(c.points, stored)
		}
	}

	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("Query"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	withVectors := req.GetWithVectors().GetEnable()
	var scored []*qdrant.ScoredPoint

	if req.GetQuery() == nil {
		points := append([]*fakePoint(nil), c.points...)
		sort.Slice(points, func(i, j int) bool { return points[i].id < points[j].id })
		for _, p := range points {
			scored = append(scored, toScored(p, 1, withVectors))
		}
	} else {
		query := req.GetQuery().GetNearest().GetDense().GetData()
		if uint64(len(query)) != c.size {
			return nil, errors.New("Wrong input: Vector dimension error")
		}
		for _, p := range c.points {
			score := cosine(query, p.vector)
			if req.ScoreThreshold != nil && score < req.GetScoreThreshold() {
				continue
			}
			scored = append(scored, toScored(p, score, withVectors))
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].GetScore() > scored[j].GetScore() })
	}

	offset := int(req.GetOffset())
	if offset >= len(scored) {
		return []*qdrant.ScoredPoint{}, nil
	}
	scored = scored[offset:]
	if limit := int(req.GetLimit()); req.Limit != nil && limit < len(scored) {
		scored = scored[:limit]
	}

	return scored, nil
}

func (f *fakeClient) Get(_ context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastGet = req
	if err := f.call("Get"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	var out []*qdrant.RetrievedPoint
	for _, id := range req.GetIds() {
		for _, p := range c.points {
			if p.id == id.GetUuid() {
				out = append(out, toRetrieved(p, req.GetWithVectors().GetEnable()))
			}
		}
	}

	return out, nil
}

func (f *fakeClient) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("Delete"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	for _, id := range req.GetPoints().GetPoints().GetIds() {
		kept := c.points[:0]
		for _, p := range c.points {
			if p.id != id.GetUuid() {
				kept = append(kept, p)
			}
		}
		c.points = kept
	}

	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("Scroll"); err != nil {
		return nil, err
	}
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("Not found: Collection doesn't exist!")
	}

	var selected []*fakePoint
	for _, p := range c.points {
		if matches(p, req.GetFilter()) {
			selected = append(selected, p)
		}
	}

	// как и Qdrant, order_by требует индекса по полю
	if orderBy := req.GetOrderBy(); orderBy != nil {
		if info, ok := c.schema[orderBy.GetKey()]; !ok || info.GetDataType() != qdrant.PayloadSchemaType_Datetime {
			return nil, errors.New("Bad request: No range index for `order_by` key")
		}
		desc := orderBy.GetDirection() == qdrant.Direction_Desc
		sort.SliceStable(selected, func(i, j int) bool {
			ti, tj := payloadTime(selected[i], orderBy.GetKey()), payloadTime(selected[j], orderBy.GetKey())
			if desc {
				return ti.After(tj)
			}
			return ti.Before(tj)
		})
	}

	var out []*qdrant.RetrievedPoint
	for _, p := range selected {
		out = append(out, toRetrieved(p, req.GetWithVectors().GetEnable()))
		if req.Limit != nil && len(out) >= int(req.GetLimit()) {
			break
		}
	}

	return out, nil
}

func payloadTime(p *fakePoint, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, p.payload[key].GetStringValue())
	return t
}

func matches(p *fakePoint, filter *qdrant.Filter) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		v, ok := p.payload[field.GetKey()]
		if !ok || v.GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func inputVector(v *qdrant.Vector) []float32 {
	if dense := v.GetDense().GetData(); len(dense) > 0 {
		return dense
	}
	return v.GetData()
}

func outputVector(vec []float32) *qdrant.VectorsOutput {
	return &qdrant.VectorsOutput{
		VectorsOptions: &qdrant.VectorsOutput_Vector{
			Vector: &qdrant.VectorOutput{Data: append([]float32(nil), vec...)},
		},
	}
}

func toScored(p *fakePoint, score float32, withVectors bool) *qdrant.ScoredPoint {
	sp := &qdrant.ScoredPoint{
		Id:      qdrant.NewIDUUID(p.id),
		Payload: p.payload,
		Score:   score,
	}
	if withVectors {
		sp.Vectors = outputVector(p.vector)
	}
	return sp
}

func toRetrieved(p *fakePoint, withVectors bool) *qdrant.RetrievedPoint {
	rp := &qdrant.RetrievedPoint{
		Id:      qdrant.NewIDUUID(p.id),
		Payload: p.payload,
	}
	if withVectors {
		rp.Vectors = outputVector(p.vector)
	}
	return rp
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
