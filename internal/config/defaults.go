package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.SessionTTL == 0 {
		cfg.Redis.SessionTTL = 24 * time.Hour
	}
	if cfg.Qdrant.URL == "" {
		cfg.Qdrant.URL = "http://localhost:6334"
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "animal_images"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:9090"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Retries == 0 {
		cfg.Embedding.Retries = 2
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 20
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DefaultWText == 0 {
		cfg.Search.DefaultWText = 0.5
	}
	if cfg.Search.DefaultWLike == 0 {
		cfg.Search.DefaultWLike = 0.5
	}
	if cfg.Search.DefaultAlpha == 0 {
		cfg.Search.DefaultAlpha = 0.4
	}
	if cfg.Search.HistoryLimit == 0 {
		cfg.Search.HistoryLimit = 100
	}
	if cfg.Search.CaptionLimit == 0 {
		cfg.Search.CaptionLimit = 10
	}
	if cfg.Indexing.CatalogPath == "" {
		cfg.Indexing.CatalogPath = "/usr/local/var/miru/data/catalog.db"
	}
	if cfg.Indexing.CaptionIndexPath == "" {
		cfg.Indexing.CaptionIndexPath = "/usr/local/var/miru/data/captions.bleve"
	}
	if cfg.Indexing.EncodeBatchSize == 0 {
		cfg.Indexing.EncodeBatchSize = 16
	}
	if cfg.Indexing.UpsertBatchSize == 0 {
		cfg.Indexing.UpsertBatchSize = 64
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
