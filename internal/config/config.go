package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/ocrflow/internal/pipeline"
	"github.com/Lllllllleong/ocrflow/internal/textlayer"
)

// Config holds all application configuration.
type Config struct {
	Pipeline PipelineConfig
	Raster   RasterConfig
	OCR      OCRConfig
	Scratch  ScratchConfig
	GCP      GCPConfig
	S3       S3Config
	Sink     SinkConfig
	Log      LogConfig
}

// PipelineConfig holds the default recognition options.
type PipelineConfig struct {
	DPI                 int           `mapstructure:"dpi"`
	Concurrency         int           `mapstructure:"concurrency"` // 0 means twice the CPU count
	PageTimeout         time.Duration `mapstructure:"page_timeout"`
	DocumentTimeout     time.Duration `mapstructure:"document_timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Languages           []string      `mapstructure:"languages"`
	PageSegMode         int           `mapstructure:"page_seg_mode"`
	MaxPages            int           `mapstructure:"max_pages"`
	TextLayer           bool          `mapstructure:"text_layer"`
	TextLayerMinChars   int           `mapstructure:"text_layer_min_chars"`
}

// Options converts the configured defaults into pipeline options.
func (p *PipelineConfig) Options() pipeline.Options {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 2 * runtime.NumCPU()
	}
	return pipeline.Options{
		DPI:                 p.DPI,
		Concurrency:         concurrency,
		PageTimeout:         p.PageTimeout,
		DocumentTimeout:     p.DocumentTimeout,
		ConfidenceThreshold: p.ConfidenceThreshold,
		Languages:           p.Languages,
		PageSegMode:         p.PageSegMode,
		TextLayer:           p.TextLayer,
		TextLayerMinChars:   p.TextLayerMinChars,
	}
}

// RasterConfig selects the rasterization engines, tried in order.
type RasterConfig struct {
	Engines      []string `mapstructure:"engines"`
	PdftoppmPath string   `mapstructure:"pdftoppm_path"`
}

// OCRConfig selects the recognition engine.
type OCRConfig struct {
	Engine      string  `mapstructure:"engine"`
	RateLimit   float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst       int     `mapstructure:"burst"`
	VertexModel string  `mapstructure:"vertex_model"`
}

// ScratchConfig holds transient page storage settings.
type ScratchConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// GCPConfig holds Google Cloud settings shared by the functions.
type GCPConfig struct {
	ProjectID        string `mapstructure:"project_id"`
	Region           string `mapstructure:"region"`
	OutputBucket     string `mapstructure:"output_bucket"`
	Collection       string `mapstructure:"collection"`
	WorkflowID       string `mapstructure:"workflow_id"`
	WorkflowLocation string `mapstructure:"workflow_location"`
}

// S3Config holds AWS S3 settings for the transcript sink.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// SinkConfig selects where finished transcripts are written.
type SinkConfig struct {
	Provider string `mapstructure:"provider"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the OCRFLOW_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OCRFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Pipeline defaults
	v.SetDefault("pipeline.dpi", 300)
	v.SetDefault("pipeline.concurrency", 0)
	v.SetDefault("pipeline.page_timeout", "2m")
	v.SetDefault("pipeline.document_timeout", "10m")
	v.SetDefault("pipeline.confidence_threshold", pipeline.DefaultConfidenceThreshold)
	v.SetDefault("pipeline.languages", "eng")
	v.SetDefault("pipeline.page_seg_mode", 0)
	v.SetDefault("pipeline.max_pages", 500)
	v.SetDefault("pipeline.text_layer", true)
	v.SetDefault("pipeline.text_layer_min_chars", textlayer.DefaultMinChars)

	// Raster defaults
	v.SetDefault("raster.engines", "image,pdfimages,poppler")
	v.SetDefault("raster.pdftoppm_path", "")

	// OCR defaults
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.rate_limit", 0)
	v.SetDefault("ocr.burst", 1)
	v.SetDefault("ocr.vertex_model", "gemini-1.5-pro")

	// Scratch defaults
	v.SetDefault("scratch.provider", "fs")
	v.SetDefault("scratch.dir", "")
	v.SetDefault("scratch.max_bytes", 512<<20)

	// GCP defaults
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.region", "us-central1")
	v.SetDefault("gcp.output_bucket", "")
	v.SetDefault("gcp.collection", "documents")
	v.SetDefault("gcp.workflow_id", "")
	v.SetDefault("gcp.workflow_location", "us-central1")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")

	v.SetDefault("sink.provider", "none")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"pipeline.dpi":                  "OCRFLOW_PIPELINE_DPI",
		"pipeline.concurrency":          "OCRFLOW_PIPELINE_CONCURRENCY",
		"pipeline.page_timeout":         "OCRFLOW_PIPELINE_PAGE_TIMEOUT",
		"pipeline.document_timeout":     "OCRFLOW_PIPELINE_DOCUMENT_TIMEOUT",
		"pipeline.confidence_threshold": "OCRFLOW_PIPELINE_CONFIDENCE_THRESHOLD",
		"pipeline.languages":            "OCRFLOW_PIPELINE_LANGUAGES",
		"pipeline.page_seg_mode":        "OCRFLOW_PIPELINE_PAGE_SEG_MODE",
		"pipeline.max_pages":            "OCRFLOW_PIPELINE_MAX_PAGES",
		"pipeline.text_layer":           "OCRFLOW_PIPELINE_TEXT_LAYER",
		"pipeline.text_layer_min_chars": "OCRFLOW_PIPELINE_TEXT_LAYER_MIN_CHARS",
		"raster.engines":                "OCRFLOW_RASTER_ENGINES",
		"raster.pdftoppm_path":          "OCRFLOW_RASTER_PDFTOPPM_PATH",
		"ocr.engine":                    "OCRFLOW_OCR_ENGINE",
		"ocr.rate_limit":                "OCRFLOW_OCR_RATE_LIMIT",
		"ocr.burst":                     "OCRFLOW_OCR_BURST",
		"ocr.vertex_model":              "OCRFLOW_OCR_VERTEX_MODEL",
		"scratch.provider":              "OCRFLOW_SCRATCH_PROVIDER",
		"scratch.dir":                   "OCRFLOW_SCRATCH_DIR",
		"scratch.max_bytes":             "OCRFLOW_SCRATCH_MAX_BYTES",
		"gcp.project_id":                "OCRFLOW_GCP_PROJECT_ID",
		"gcp.region":                    "OCRFLOW_GCP_REGION",
		"gcp.output_bucket":             "OCRFLOW_GCP_OUTPUT_BUCKET",
		"gcp.collection":                "OCRFLOW_GCP_COLLECTION",
		"gcp.workflow_id":               "OCRFLOW_GCP_WORKFLOW_ID",
		"gcp.workflow_location":         "OCRFLOW_GCP_WORKFLOW_LOCATION",
		"s3.region":                     "OCRFLOW_S3_REGION",
		"s3.bucket":                     "OCRFLOW_S3_BUCKET",
		"s3.endpoint":                   "OCRFLOW_S3_ENDPOINT",
		"s3.access_key":                 "OCRFLOW_S3_ACCESS_KEY",
		"s3.secret_key":                 "OCRFLOW_S3_SECRET_KEY",
		"sink.provider":                 "OCRFLOW_SINK_PROVIDER",
		"log.level":                     "OCRFLOW_LOG_LEVEL",
		"log.format":                    "OCRFLOW_LOG_FORMAT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	cfg.Pipeline = PipelineConfig{
		DPI:                 v.GetInt("pipeline.dpi"),
		Concurrency:         v.GetInt("pipeline.concurrency"),
		PageTimeout:         v.GetDuration("pipeline.page_timeout"),
		DocumentTimeout:     v.GetDuration("pipeline.document_timeout"),
		ConfidenceThreshold: v.GetFloat64("pipeline.confidence_threshold"),
		Languages:           splitList(v.GetString("pipeline.languages")),
		PageSegMode:         v.GetInt("pipeline.page_seg_mode"),
		MaxPages:            v.GetInt("pipeline.max_pages"),
		TextLayer:           v.GetBool("pipeline.text_layer"),
		TextLayerMinChars:   v.GetInt("pipeline.text_layer_min_chars"),
	}
	cfg.Raster = RasterConfig{
		Engines:      splitList(v.GetString("raster.engines")),
		PdftoppmPath: v.GetString("raster.pdftoppm_path"),
	}
	cfg.OCR = OCRConfig{
		Engine:      strings.ToLower(v.GetString("ocr.engine")),
		RateLimit:   v.GetFloat64("ocr.rate_limit"),
		Burst:       v.GetInt("ocr.burst"),
		VertexModel: v.GetString("ocr.vertex_model"),
	}
	cfg.Scratch = ScratchConfig{
		Provider: strings.ToLower(v.GetString("scratch.provider")),
		Dir:      v.GetString("scratch.dir"),
		MaxBytes: v.GetInt64("scratch.max_bytes"),
	}
	cfg.GCP = GCPConfig{
		ProjectID:        v.GetString("gcp.project_id"),
		Region:           v.GetString("gcp.region"),
		OutputBucket:     v.GetString("gcp.output_bucket"),
		Collection:       v.GetString("gcp.collection"),
		WorkflowID:       v.GetString("gcp.workflow_id"),
		WorkflowLocation: v.GetString("gcp.workflow_location"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Sink = SinkConfig{
		Provider: strings.ToLower(v.GetString("sink.provider")),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the functions cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Pipeline.Options().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Pipeline.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_pages must not be negative"))
	}
	if len(c.Raster.Engines) == 0 {
		errs = append(errs, errors.New("raster.engines must name at least one engine"))
	}
	for _, e := range c.Raster.Engines {
		switch e {
		case "image", "pdfimages", "poppler", "pdftoppm":
		default:
			errs = append(errs, fmt.Errorf("raster.engines: unknown engine %q", e))
		}
	}
	switch c.OCR.Engine {
	case "tesseract":
	case "vertex":
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("ocr.engine vertex requires gcp.project_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("ocr.engine: unknown engine %q", c.OCR.Engine))
	}
	if c.OCR.RateLimit < 0 {
		errs = append(errs, errors.New("ocr.rate_limit must not be negative"))
	}
	switch c.Scratch.Provider {
	case "fs", "memory":
	default:
		errs = append(errs, fmt.Errorf("scratch.provider: unknown provider %q", c.Scratch.Provider))
	}
	switch c.Sink.Provider {
	case "none":
	case "gcs":
		if c.GCP.OutputBucket == "" {
			errs = append(errs, errors.New("sink.provider gcs requires gcp.output_bucket"))
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("sink.provider s3 requires s3.bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.provider: unknown provider %q", c.Sink.Provider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
