package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ModelConfigPattern matches the descriptor files inside a configuration directory.
const ModelConfigPattern = "*.model.json"

// Defaults applied to optional endpoint and transform settings.
const (
	DefaultVariantName        = "AllTraffic"
	DefaultInstanceType       = "ml.m5.large"
	DefaultInstanceCount      = 1
	DefaultVariantWeight      = 1.0
	DefaultSamplingPercentage = 100
	DefaultContentType        = "text/csv"
	DefaultSplitType          = "Line"
	DefaultAssembleWith       = "Line"
)

// SageMaker resource names (endpoints, pipelines) share this pattern.
var sageMakerNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9](-*[a-zA-Z0-9]){0,62}$`)

// ModelConfig describes how one model is served. It is loaded from a single
// *.model.json file and is not modified after loading.
type ModelConfig struct {
	ModelName             string            `json:"model_name"`
	ModelPackageGroupName string            `json:"model_package_group_name"`
	FeaturesNames         []string          `json:"features_names"`
	Endpoints             []EndpointConfig  `json:"endpoints"`
	BatchTransforms       []TransformConfig `json:"batch_transforms"`

	// Source is the path the configuration was read from.
	Source string `json:"-"`
}

// EndpointConfig describes one real-time inference endpoint.
type EndpointConfig struct {
	EndpointName         string             `json:"endpoint_name" yaml:"endpoint_name"`
	VariantName          string             `json:"variant_name,omitempty" yaml:"variant_name,omitempty"`
	InstanceType         string             `json:"instance_type,omitempty" yaml:"instance_type,omitempty"`
	InitialInstanceCount *int               `json:"initial_instance_count,omitempty" yaml:"initial_instance_count,omitempty"`
	InitialVariantWeight *float64           `json:"initial_variant_weight,omitempty" yaml:"initial_variant_weight,omitempty"`
	ModelPackageARN      string             `json:"model_package_arn,omitempty" yaml:"model_package_arn,omitempty"`
	APIPath              string             `json:"api_path,omitempty" yaml:"api_path,omitempty"`
	DataCapture          *DataCaptureConfig `json:"data_capture,omitempty" yaml:"data_capture,omitempty"`
}

// DataCaptureConfig enables request/response capture into the project bucket.
type DataCaptureConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	SamplingPercentage *int   `json:"sampling_percentage,omitempty" yaml:"sampling_percentage,omitempty"`
	DestinationPrefix  string `json:"destination_prefix,omitempty" yaml:"destination_prefix,omitempty"`
}

// TransformConfig describes one batch transform pipeline.
type TransformConfig struct {
	PipelineName    string `json:"pipeline_name" yaml:"pipeline_name"`
	InstanceType    string `json:"instance_type,omitempty" yaml:"instance_type,omitempty"`
	InstanceCount   *int   `json:"instance_count,omitempty" yaml:"instance_count,omitempty"`
	InputPrefix     string `json:"input_prefix,omitempty" yaml:"input_prefix,omitempty"`
	OutputPrefix    string `json:"output_prefix,omitempty" yaml:"output_prefix,omitempty"`
	ContentType     string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	SplitType       string `json:"split_type,omitempty" yaml:"split_type,omitempty"`
	Accept          string `json:"accept,omitempty" yaml:"accept,omitempty"`
	AssembleWith    string `json:"assemble_with,omitempty" yaml:"assemble_with,omitempty"`
	MaxPayloadMB    *int   `json:"max_payload_mb,omitempty" yaml:"max_payload_mb,omitempty"`
	ModelPackageARN string `json:"model_package_arn,omitempty" yaml:"model_package_arn,omitempty"`
	Schedule        string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	CrawlOutput     bool   `json:"crawl_output,omitempty" yaml:"crawl_output,omitempty"`
	APITrigger      *bool  `json:"api_trigger,omitempty" yaml:"api_trigger,omitempty"`
}

// LoadModelConfigs loads every *.model.json file in dir, sorted by file name.
// Loading is all-or-nothing: the first invalid file aborts the whole load.
func LoadModelConfigs(fs afero.Fs, dir string) ([]*ModelConfig, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading configuration directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("configuration path %s is not a directory", dir)
	}

	paths, err := afero.Glob(fs, filepath.Join(dir, ModelConfigPattern))
	if err != nil {
		return nil, fmt.Errorf("listing %s in %s: %w", ModelConfigPattern, dir, err)
	}
	sort.Strings(paths)

	configs := make([]*ModelConfig, 0, len(paths))
	for _, p := range paths {
		conf, err := LoadModelConfig(fs, p)
		if err != nil {
			return nil, err
		}
		configs = append(configs, conf)
	}
	return configs, nil
}

// LoadModelConfig reads and validates a single model descriptor.
func LoadModelConfig(fs afero.Fs, filePath string) (*ModelConfig, error) {
	data, err := afero.ReadFile(fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("reading model config: %w", err)
	}
	conf, err := ParseModelConfig(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Source = filePath
			return nil, verr
		}
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	conf.Source = filePath
	return conf, nil
}

// ParseModelConfig decodes and validates a model descriptor. Required keys
// must be present even when their value is an empty list.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	verr := &ValidationError{Source: "model config"}
	for _, key := range []string{"model_name", "model_package_group_name", "features_names", "endpoints", "batch_transforms"} {
		v, ok := raw[key]
		if !ok {
			verr.add("missing required key %q", key)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			verr.add("key %q must not be null", key)
		}
	}

	var conf ModelConfig
	if err := json.Unmarshal(data, &conf); err != nil {
		verr.add("%v", err)
		return nil, verr
	}
	conf.validate(raw, verr)

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks a configuration built in code rather than loaded from a file.
func (c *ModelConfig) Validate() error {
	source := c.Source
	if source == "" {
		source = fmt.Sprintf("model config %q", c.ModelName)
	}
	verr := &ValidationError{Source: source}
	present := map[string]json.RawMessage{
		"model_name":               nil,
		"model_package_group_name": nil,
	}
	c.validate(present, verr)
	return verr.orNil()
}

// validate checks field values. Absent keys were already reported by the caller.
func (c *ModelConfig) validate(raw map[string]json.RawMessage, verr *ValidationError) {
	if _, ok := raw["model_name"]; ok && c.ModelName == "" {
		verr.add("model_name must not be empty")
	}
	if _, ok := raw["model_package_group_name"]; ok && c.ModelPackageGroupName == "" {
		verr.add("model_package_group_name must not be empty")
	}
	for i, name := range c.FeaturesNames {
		if name == "" {
			verr.add("features_names[%d] must not be empty", i)
		}
	}
	for i := range c.Endpoints {
		c.Endpoints[i].validate(fmt.Sprintf("endpoints[%d]", i), verr)
	}
	for i := range c.BatchTransforms {
		c.BatchTransforms[i].validate(fmt.Sprintf("batch_transforms[%d]", i), verr)
	}
}

func (e *EndpointConfig) validate(field string, verr *ValidationError) {
	switch {
	case e.EndpointName == "":
		verr.add("%s.endpoint_name is required", field)
	case !sageMakerNameRegexp.MatchString(e.EndpointName):
		verr.add("%s.endpoint_name %q is not a valid SageMaker name", field, e.EndpointName)
	}
	if e.APIPath != "" {
		switch {
		case strings.HasPrefix(e.APIPath, "/"):
			verr.add("%s.api_path %q must not start with /", field, e.APIPath)
		case containsEmptySegment(e.APIPath):
			verr.add("%s.api_path %q must not contain empty segments", field, e.APIPath)
		}
	}
	if e.InitialInstanceCount != nil && *e.InitialInstanceCount < 1 {
		verr.add("%s.initial_instance_count must be >= 1, got %d", field, *e.InitialInstanceCount)
	}
	if e.InitialVariantWeight != nil && *e.InitialVariantWeight < 0 {
		verr.add("%s.initial_variant_weight must be >= 0, got %g", field, *e.InitialVariantWeight)
	}
	if dc := e.DataCapture; dc != nil && dc.SamplingPercentage != nil {
		if p := *dc.SamplingPercentage; p < 1 || p > 100 {
			verr.add("%s.data_capture.sampling_percentage must be between 1 and 100, got %d", field, p)
		}
	}
}

func containsEmptySegment(apiPath string) bool {
	for _, segment := range strings.Split(apiPath, "/") {
		if segment == "" {
			return true
		}
	}
	return false
}

func (t *TransformConfig) validate(field string, verr *ValidationError) {
	switch {
	case t.PipelineName == "":
		verr.add("%s.pipeline_name is required", field)
	case !sageMakerNameRegexp.MatchString(t.PipelineName):
		verr.add("%s.pipeline_name %q is not a valid SageMaker name", field, t.PipelineName)
	}
	if t.InstanceCount != nil && *t.InstanceCount < 1 {
		verr.add("%s.instance_count must be >= 1, got %d", field, *t.InstanceCount)
	}
	if t.MaxPayloadMB != nil && (*t.MaxPayloadMB < 0 || *t.MaxPayloadMB > 100) {
		verr.add("%s.max_payload_mb must be between 0 and 100, got %d", field, *t.MaxPayloadMB)
	}
	if t.Schedule != "" {
		if _, err := AWSSchedule(t.Schedule); err != nil {
			verr.add("%s.schedule: %v", field, err)
		}
	}
}

// WithDefaults returns a copy of e with every optional setting filled in.
func (e EndpointConfig) WithDefaults() EndpointConfig {
	if e.VariantName == "" {
		e.VariantName = DefaultVariantName
	}
	if e.InstanceType == "" {
		e.InstanceType = DefaultInstanceType
	}
	if e.InitialInstanceCount == nil {
		e.InitialInstanceCount = intPtr(DefaultInstanceCount)
	}
	if e.InitialVariantWeight == nil {
		w := DefaultVariantWeight
		e.InitialVariantWeight = &w
	}
	if e.APIPath == "" {
		e.APIPath = e.EndpointName
	}
	if e.DataCapture != nil && e.DataCapture.Enabled {
		dc := *e.DataCapture
		if dc.SamplingPercentage == nil {
			dc.SamplingPercentage = intPtr(DefaultSamplingPercentage)
		}
		if dc.DestinationPrefix == "" {
			dc.DestinationPrefix = path.Join("data-capture", e.EndpointName)
		}
		e.DataCapture = &dc
	}
	return e
}

// WithDefaults returns a copy of t with every optional setting filled in.
func (t TransformConfig) WithDefaults() TransformConfig {
	if t.InstanceType == "" {
		t.InstanceType = DefaultInstanceType
	}
	if t.InstanceCount == nil {
		t.InstanceCount = intPtr(DefaultInstanceCount)
	}
	if t.InputPrefix == "" {
		t.InputPrefix = path.Join("batch", t.PipelineName, "input")
	}
	if t.OutputPrefix == "" {
		t.OutputPrefix = path.Join("batch", t.PipelineName, "output")
	}
	if t.ContentType == "" {
		t.ContentType = DefaultContentType
	}
	if t.SplitType == "" {
		t.SplitType = DefaultSplitType
	}
	if t.Accept == "" {
		t.Accept = DefaultContentType
	}
	if t.AssembleWith == "" {
		t.AssembleWith = DefaultAssembleWith
	}
	if t.APITrigger == nil {
		enabled := true
		t.APITrigger = &enabled
	}
	return t
}

func intPtr(v int) *int {
	return &v
}
