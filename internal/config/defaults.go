package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/meishi/data/db/contacts.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/meishi/data/indices/vectors"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/meishi/data/indices/bleve"
	}
	if cfg.Storage.StagingDir == "" {
		cfg.Storage.StagingDir = "/usr/local/var/meishi/data/staging"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Assistant.Model == "" {
		cfg.Assistant.Model = "gpt-4o-mini"
	}
	if cfg.Assistant.MaxContextChunks == 0 {
		cfg.Assistant.MaxContextChunks = 8
	}
	if cfg.Assistant.MaxHistory == 0 {
		cfg.Assistant.MaxHistory = 10
	}
	if cfg.Enrich.SessionTTLMinutes == 0 {
		cfg.Enrich.SessionTTLMinutes = 60
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".vcf", ".csv", ".xlsx"}
	}
}
