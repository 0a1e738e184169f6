package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragbot/internal/contextutil"
)

// BackendQdrant names the Qdrant backend in IndexInfo.
const BackendQdrant = "qdrant"

const upsertBatchSize = 256

// QdrantStore implements VectorStore using Qdrant.
// Each Replace builds a fresh collection "<base>-<generation>" and then swaps a local
// pointer file to it, so queries never hit a half-filled collection.
type QdrantStore struct {
	client      *qdrant.Client
	base        string
	pointerPath string
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
// pointerDir holds the file naming the active collection.
func NewQdrantStore(urlStr, collection, pointerDir string) (*QdrantStore, error) {
	host, port, err := parseQdrantAddress(urlStr)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:      client,
		base:        collection,
		pointerPath: filepath.Join(pointerDir, "QDRANT_CURRENT"),
	}, nil
}

// parseQdrantAddress maps the HTTP URL onto the gRPC host and port (HTTP port + 1).
func parseQdrantAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) collectionName(gen string) string {
	return s.base + "-" + gen
}

func (s *QdrantStore) activeCollection() (string, error) {
	data, err := os.ReadFile(s.pointerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrIndexNotFound
		}
		return "", fmt.Errorf("failed to read collection pointer: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if !strings.HasPrefix(name, s.base+"-") {
		return "", fmt.Errorf("%w: pointer names unexpected collection %q", ErrCorruptIndex, name)
	}
	return name, nil
}

// Replace uploads points into a new collection and makes it active.
func (s *QdrantStore) Replace(ctx context.Context, points []Point) (IndexInfo, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return IndexInfo{}, ErrEmptyIndex
	}
	check := NewFlatIndex(0)
	for i, p := range points {
		if err := check.Add(p.Vec, Record{}); err != nil {
			return IndexInfo{}, fmt.Errorf("point %d: %w", i, err)
		}
	}

	previous, err := s.activeCollection()
	if err != nil && !errors.Is(err, ErrIndexNotFound) {
		return IndexInfo{}, err
	}

	gen := time.Now().UTC().Format("20060102t150405") + "-" + uuid.NewString()[:8]
	collection := s.collectionName(gen)

	logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", check.Dim())
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(check.Dim()),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to create collection: %w", err)
	}

	wait := true
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			p := points[i]
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(p.Vec...),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":        p.Record.Text,
					"source_file": p.Record.SourceFile,
					"url":         p.Record.URL,
					"position":    int64(i),
				}),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         batch,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(batch), "error", err)
			_ = s.client.DeleteCollection(ctx, collection)
			return IndexInfo{}, fmt.Errorf("failed to upsert points: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.pointerPath), 0755); err != nil {
		return IndexInfo{}, fmt.Errorf("failed to create pointer directory: %w", err)
	}
	if err := writeFileAtomic(s.pointerPath, []byte(collection+"\n")); err != nil {
		_ = s.client.DeleteCollection(ctx, collection)
		return IndexInfo{}, fmt.Errorf("failed to swap collection: %w", err)
	}

	if previous != "" && previous != collection {
		if err := s.client.DeleteCollection(ctx, previous); err != nil {
			logger.WarnContext(ctx, "failed to drop previous collection", "collection", previous, "error", err)
		}
	}

	logger.InfoContext(ctx, "index replaced", "collection", collection, "previous", previous, "count", len(points))
	return IndexInfo{Backend: BackendQdrant, Generation: gen, Count: len(points), Dimension: check.Dim()}, nil
}

// Search queries the active collection.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return []SearchResult{}, fmt.Errorf("k must be greater than 0")
	}
	if !Finite(query) {
		return []SearchResult{}, ErrInvalidVector
	}
	collection, err := s.activeCollection()
	if err != nil {
		return []SearchResult{}, err
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return []SearchResult{}, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		meta := convertPayloadToMap(point.GetPayload())
		results = append(results, resultFromPayload(point.GetId().GetNum(), point.GetScore(), meta))
	}
	sortResults(results)

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// resultFromPayload rebuilds a SearchResult. Qdrant's Euclid score is the plain distance,
// so it is squared to match the flat index.
func resultFromPayload(id uint64, score float32, meta map[string]any) SearchResult {
	res := SearchResult{
		Position: int(id),
		Distance: score * score,
	}
	res.Text, _ = meta["text"].(string)
	res.SourceFile, _ = meta["source_file"].(string)
	res.URL, _ = meta["url"].(string)
	if pos, ok := meta["position"].(int64); ok {
		res.Position = int(pos)
	}
	return res
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].Position < results[b].Position
	})
}

// Info returns information about the active collection including point count.
func (s *QdrantStore) Info(ctx context.Context) (IndexInfo, error) {
	collection, err := s.activeCollection()
	if err != nil {
		return IndexInfo{}, err
	}
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to get collection info: %w", err)
	}

	var vectorSize int
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if vectorsConfig := config.GetParams().GetVectorsConfig(); vectorsConfig != nil {
			if params := vectorsConfig.GetParams(); params != nil {
				vectorSize = int(params.GetSize())
			}
		}
	}

	var pointsCount int
	if info.PointsCount != nil {
		pointsCount = int(*info.PointsCount)
	}

	return IndexInfo{
		Backend:    BackendQdrant,
		Generation: strings.TrimPrefix(collection, s.base+"-"),
		Count:      pointsCount,
		Dimension:  vectorSize,
	}, nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
