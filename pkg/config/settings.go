// Package config loads the bigsh settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/psaab/bigsh/pkg/runconfig"
)

// Transports understood by the CLI.
const (
	TransportREST = "rest"
	TransportGRPC = "grpc"
	TransportFile = "file"
)

// Settings is the YAML settings file.
type Settings struct {
	Controller        string        `yaml:"controller" validate:"omitempty,url"`
	Transport         string        `yaml:"transport" validate:"required,oneof=rest grpc file"`
	GRPCAddr          string        `yaml:"grpc_addr" validate:"omitempty,hostname_port"`
	Token             string        `yaml:"token"`
	SchemaFile        string        `yaml:"schema_file"`
	DescriptorFiles   []string      `yaml:"descriptor_files" validate:"required,min=1,dive,required"`
	DataFile          string        `yaml:"data_file"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries           int           `yaml:"retries" validate:"gte=0,lte=10"`
	CacheTTL          time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	SubsetSearchLimit int           `yaml:"subset_search_limit" validate:"gte=1,lte=16"`
	Detail            bool          `yaml:"detail"`
	HistoryDB         string        `yaml:"history_db"`
	HistorySize       int           `yaml:"history_size" validate:"gte=1,lte=1000"`
	HTTPAddr          string        `yaml:"http_addr" validate:"omitempty,hostname_port"`
	LogLevel          string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	MetricsFile       string        `yaml:"metrics_file"`
}

// Defaults returns the settings used when no file is given.
func Defaults() *Settings {
	return &Settings{
		Transport:         TransportFile,
		Timeout:           30 * time.Second,
		SubsetSearchLimit: runconfig.DefaultSubsetLimit,
		HistorySize:       50,
		LogLevel:          "info",
	}
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	return v
}()

// Load reads path over Defaults. Relative file names are resolved against
// the directory holding path. The result is not validated; call Validate
// once flags have been applied.
func Load(path string) (*Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.resolve(filepath.Dir(path))
	return s, nil
}

func (s *Settings) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s.SchemaFile = abs(s.SchemaFile)
	s.DataFile = abs(s.DataFile)
	s.HistoryDB = abs(s.HistoryDB)
	s.MetricsFile = abs(s.MetricsFile)
	for i, f := range s.DescriptorFiles {
		s.DescriptorFiles[i] = abs(f)
	}
}

// Validate checks field constraints and the files each transport needs.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	switch s.Transport {
	case TransportREST:
		if s.Controller == "" {
			return errors.New("invalid settings: controller is required for the rest transport")
		}
	case TransportGRPC:
		if s.GRPCAddr == "" {
			return errors.New("invalid settings: grpc_addr is required for the grpc transport")
		}
		if s.SchemaFile == "" {
			return errors.New("invalid settings: schema_file is required for the grpc transport")
		}
	case TransportFile:
		if s.SchemaFile == "" || s.DataFile == "" {
			return errors.New("invalid settings: schema_file and data_file are required for the file transport")
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", name, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "url":
		return name + " must be a URL"
	case "hostname_port":
		return name + " must be host:port"
	}
	return fmt.Sprintf("%s failed %s", name, fe.Tag())
}
