package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const DefaultRegion = "us-east-1"

// Credentials holds the AWS access triple for a single run. It is never
// written back to disk or the environment.
type Credentials struct {
	AccessKey string
	SecretKey string
	Region    string
}

// Resolve produces a complete credential set using the first non-empty value
// per field: explicit flag values, then environment variables, then a .env
// file, then an interactive prompt. When both key and secret are supplied as
// flags the region flag value is taken as-is and no other source is consulted.
func Resolve(flagKey, flagSecret, flagRegion string, src CredentialSource) (*Credentials, error) {
	if flagKey != "" && flagSecret != "" {
		region := flagRegion
		if region == "" {
			region = DefaultRegion
		}
		return &Credentials{AccessKey: flagKey, SecretKey: flagSecret, Region: region}, nil
	}

	creds := &Credentials{
		AccessKey: firstNonEmpty(flagKey, os.Getenv("AWS_KEY"), os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretKey: firstNonEmpty(flagSecret, os.Getenv("AWS_SECRET"), os.Getenv("AWS_SECRET_ACCESS_KEY")),
		Region:    firstNonEmpty(flagRegion, os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION"), DefaultRegion),
	}

	if creds.AccessKey == "" || creds.SecretKey == "" {
		fillFromEnvFile(creds)
	}

	if creds.AccessKey == "" {
		key, err := src.ReadLine("Enter AWS Access Key ID: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read access key: %w", err)
		}
		creds.AccessKey = key
	}
	if creds.SecretKey == "" {
		secret, err := src.ReadSecret("Enter AWS Secret Access Key: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read secret key: %w", err)
		}
		creds.SecretKey = secret
	}

	if creds.AccessKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not found or invalid")
	}

	return creds, nil
}

// fillFromEnvFile consults the first existing .env file among the candidate
// locations. Only that one file is read; keys missing from it fall through to
// the prompt, never to a later candidate.
func fillFromEnvFile(creds *Credentials) {
	path, ok := findEnvFile()
	if !ok {
		return
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return
	}

	if creds.AccessKey == "" {
		creds.AccessKey = vars["AWS_KEY"]
	}
	if creds.SecretKey == "" {
		creds.SecretKey = vars["AWS_SECRET"]
	}
}

func findEnvFile() (string, bool) {
	for _, path := range envFileCandidates() {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func envFileCandidates() []string {
	candidates := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".env"))
	}

	return candidates
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
