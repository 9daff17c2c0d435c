// Package signer re-signs application packages with an external signing tool.
//
// Every call works in its own scratch directory which is removed on return. The
// credential files are written there under fixed names and the tool is run with
// that directory as its working directory so its debug output stays contained.
package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/telemetry"
)

const (
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "zsign"
	// DefaultPassword is the activation password issued archives are protected with.
	DefaultPassword = "1"
	// DefaultTimeout bounds a single signer run.
	DefaultTimeout = 10 * time.Minute

	keyFileName     = "dev.p12"
	profileFileName = "dev.mobileprovision"
	outputFileName  = "output.ipa"
)

// Config configures a Signer.
type Config struct {
	Binary   string
	Password string
	Timeout  time.Duration
	TempDir  string // parent for scratch directories, defaults to os.TempDir()
}

// Signer runs the external signing tool.
type Signer struct {
	binary   string
	password string
	timeout  time.Duration
	tempDir  string
}

// Result is a signed package and the metadata the tool reported.
type Result struct {
	SignedBytes []byte
	Metadata
	Profile *ProfileInfo
}

// New creates a Signer, applying defaults for unset fields.
func New(cfg Config) *Signer {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Signer{
		binary:   cfg.Binary,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		tempDir:  cfg.TempDir,
	}
}

// Sign re-signs the package at packagePath. Failures are returned as *Error.
func (s *Signer) Sign(ctx context.Context, packagePath string, creds Credentials) (*Result, error) {
	absPackage, err := filepath.Abs(packagePath)
	if err != nil {
		return nil, stageError(ErrPackageMissing, err)
	}
	if info, err := os.Stat(absPackage); err != nil || info.IsDir() {
		return nil, stageError(ErrPackageMissing, fmt.Errorf("%s: not a file", packagePath))
	}

	if err := creds.check(); err != nil {
		return nil, err
	}

	binary, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, stageError(ErrToolNotFound, err)
	}

	scratch, err := os.MkdirTemp(s.tempDir, "certsign-sign-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("dir", scratch).Msg("Failed to remove signing scratch directory")
		}
	}()

	keyPath := filepath.Join(scratch, keyFileName)
	profilePath := filepath.Join(scratch, profileFileName)
	outputPath := filepath.Join(scratch, outputFileName)

	if err := os.WriteFile(keyPath, creds.KeyArchive, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key archive: %w", err)
	}
	if err := os.WriteFile(profilePath, creds.Profile, 0600); err != nil {
		return nil, fmt.Errorf("failed to write provisioning profile: %w", err)
	}

	// validate what was written, not what was passed in
	if err := s.checkKeyFile(keyPath); err != nil {
		return nil, err
	}

	profile, err := readProfile(profilePath)
	if err != nil {
		return nil, err
	}
	if profile.Expired(time.Now()) {
		log.Warn().Str("profile", profile.Name).Time("expires", profile.ExpirationDate).Msg("Provisioning profile has expired")
	}

	stdout, err := s.run(ctx, binary, scratch, absPackage)
	if err != nil {
		return nil, err
	}

	signed, err := os.ReadFile(outputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Stage: ErrOutputMissing, Output: stdout}
		}
		return nil, fmt.Errorf("failed to read signed package: %w", err)
	}
	if len(signed) == 0 {
		return nil, &Error{Stage: ErrOutputMissing, Err: errors.New("signed package is empty"), Output: stdout}
	}

	meta := parseOutput(stdout)

	log.Debug().
		Str("app_name", meta.AppName).
		Str("bundle_id", meta.BundleID).
		Str("version", meta.Version).
		Int("size", len(signed)).
		Msg("Package signed")

	return &Result{SignedBytes: signed, Metadata: meta, Profile: profile}, nil
}

func (s *Signer) checkKeyFile(keyPath string) error {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return stageError(ErrInvalidKeyArchive, err)
	}
	return checkKeyArchive(key, s.password)
}

func readProfile(path string) (*ProfileInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stageError(ErrInvalidProfile, err)
	}
	return inspectProfile(data)
}

func (s *Signer) run(ctx context.Context, binary, dir, packagePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{
		"-k", keyFileName,
		"-p", s.password,
		"-m", profileFileName,
		"-o", outputFileName,
		"-f", // ignore the tool's cache
		"-d", // debug output, written under dir
		packagePath,
	}

	// #nosec G204 - binary comes from configuration, arguments are fixed file names
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	telemetry.GetMetrics().SignDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
		}
		return "", &Error{Stage: ErrToolFailed, Err: err, Output: stdout.String() + stderr.String()}
	}

	return stdout.String(), nil
}
