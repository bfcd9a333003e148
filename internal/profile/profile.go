package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"interviewdesk/internal/domain"
)

// Profile is a YAML launch profile for the terminal driver.
type Profile struct {
	Mode            domain.Mode `yaml:"mode"`
	UserName        string      `yaml:"user_name"`
	Role            string      `yaml:"role"`
	Skills          string      `yaml:"skills"`
	ResumeFile      string      `yaml:"resume_file"`
	AccessKey       string      `yaml:"access_key"`
	DurationSeconds int         `yaml:"duration_seconds"`

	dir string
}

// ResumeConverter turns an uploaded PDF into plain text.
type ResumeConverter interface {
	UploadResume(ctx context.Context, filename string, data []byte) (string, error)
}

// Load reads and validates the profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// Parse decodes and validates a profile document. Unknown keys are rejected.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	p.Mode = domain.Mode(strings.ToLower(strings.TrimSpace(string(p.Mode))))
	p.UserName = strings.TrimSpace(p.UserName)
	p.AccessKey = strings.TrimSpace(p.AccessKey)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("profile mode %q must be resume, position or evaluation", p.Mode)
	}
	switch p.Mode {
	case domain.ModeEvaluation:
		if p.AccessKey == "" {
			return errors.New("evaluation profile requires access_key")
		}
		if p.DurationSeconds <= 0 {
			return errors.New("evaluation profile requires a positive duration_seconds")
		}
	case domain.ModePosition:
		if strings.TrimSpace(p.Role) == "" {
			return errors.New("position profile requires role")
		}
	}
	if p.DurationSeconds < 0 {
		return errors.New("duration_seconds must not be negative")
	}
	return nil
}

// SessionConfig resolves the profile into launch parameters. A PDF resume is converted through
// conv; any other resume file is read as text.
func (p *Profile) SessionConfig(ctx context.Context, conv ResumeConverter) (domain.SessionConfig, error) {
	cfg := domain.SessionConfig{
		Mode:            p.Mode,
		UserName:        p.UserName,
		Role:            strings.TrimSpace(p.Role),
		Skills:          strings.TrimSpace(p.Skills),
		AccessKey:       p.AccessKey,
		DurationSeconds: p.DurationSeconds,
	}
	if cfg.UserName == "" {
		cfg.UserName = "Candidate"
	}
	if p.ResumeFile == "" {
		return cfg, nil
	}

	path := p.ResumeFile
	if !filepath.IsAbs(path) && p.dir != "" {
		path = filepath.Join(p.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SessionConfig{}, fmt.Errorf("failed to read resume: %w", err)
	}

	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		cfg.ResumeText = strings.TrimSpace(string(data))
		return cfg, nil
	}
	if conv == nil {
		return domain.SessionConfig{}, errors.New("a PDF resume needs the interview API to convert it")
	}
	text, err := conv.UploadResume(ctx, filepath.Base(path), data)
	if err != nil {
		return domain.SessionConfig{}, fmt.Errorf("failed to convert resume: %w", err)
	}
	cfg.ResumeText = strings.TrimSpace(text)
	return cfg, nil
}
