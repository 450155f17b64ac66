// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"mindscribe-go/internal/config"
	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"entry_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"title": { "type": "text" },
				"content": { "type": "text" },
				"summary": { "type": "text" },
				"emotion": { "type": "keyword" },
				"keywords": { "type": "keyword" },
				"created_at": { "type": "date" }
			}
		}
	}`

	createRes, err := ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, createRes.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// EntryIndex 是日记在 Elasticsearch 中的索引。
type EntryIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewEntryIndex 创建一个 EntryIndex。
func NewEntryIndex(client *elasticsearch.Client, index string) *EntryIndex {
	return &EntryIndex{client: client, index: index}
}

// IndexEntry 将单篇日记写入索引，以日记 id 作为文档 id。
func (x *EntryIndex) IndexEntry(ctx context.Context, entry *model.JournalEntry) error {
	docBytes, err := json.Marshal(model.NewEntryDocument(entry))
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: entry.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引日记到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index entry")
	}
	return nil
}

// buildSearchQuery 构造只在某个用户日记中检索的 multi_match 查询。
func buildSearchQuery(userID, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"title^2", "content", "summary", "keywords"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{"content": map[string]interface{}{}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    model.EntryDocument `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchEntries 在某个用户的日记中进行全文检索。
func (x *EntryIndex) SearchEntries(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error) {
	if size <= 0 {
		size = 10
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(userID, query, size)); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return toHits(parsed), nil
}

func toHits(parsed searchResponse) []model.SearchHit {
	hits := make([]model.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		snippet := h.Source.Content
		if hl := h.Highlight["content"]; len(hl) > 0 {
			snippet = hl[0]
		} else if len([]rune(snippet)) > 160 {
			snippet = string([]rune(snippet)[:160]) + "..."
		}
		hits = append(hits, model.SearchHit{
			EntryID:   h.Source.EntryID,
			Title:     h.Source.Title,
			Snippet:   snippet,
			Emotion:   h.Source.Emotion,
			CreatedAt: h.Source.CreatedAt,
			Score:     h.Score,
		})
	}
	return hits
}
