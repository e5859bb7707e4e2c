package s3client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3 serves a fixed key->content map and records every call, so tests
// can assert which keys each tier touched and in what order.
type mockS3 struct {
	objects   map[string]string
	listPages [][]types.Object
	listErr   error
	headErr   map[string]error
	getErr    map[string]error

	headKeys []string
	getKeys  []string
}

func accessDeniedErr() error {
	return &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
}

func notFoundErr() error {
	return &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	idx := 0
	if params.ContinuationToken != nil {
		idx, _ = strconv.Atoi(*params.ContinuationToken)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if idx < len(m.listPages) {
		out.Contents = m.listPages[idx]
	}
	if idx < len(m.listPages)-1 {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(idx + 1))
	}
	return out, nil
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	m.headKeys = append(m.headKeys, key)

	if err, ok := m.headErr[key]; ok {
		return nil, err
	}
	content, ok := m.objects[key]
	if !ok {
		return nil, notFoundErr()
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(content)))}, nil
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	m.getKeys = append(m.getKeys, key)

	if err, ok := m.getErr[key]; ok {
		return nil, err
	}
	content, ok := m.objects[key]
	if !ok {
		return nil, notFoundErr()
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(content)),
		ContentLength: aws.Int64(int64(len(content))),
	}, nil
}

func listEntry(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func TestFetchModelPrimary(t *testing.T) {
	mock := &mockS3{
		objects: map[string]string{
			ModelPrefix + "config.json":                      strings.Repeat("a", 12),
			ModelPrefix + "model-00001-of-00002.safetensors": strings.Repeat("b", 100),
			ModelPrefix + "sub/tokenizer.json":               strings.Repeat("c", 5),
		},
		listPages: [][]types.Object{
			{
				listEntry(ModelPrefix, 0),
				listEntry(ModelPrefix+"config.json", 12),
				listEntry(ModelPrefix+".cache/huggingface/download", 9),
				listEntry(ModelPrefix+"model-00001-of-00002.safetensors", 100),
			},
			{
				listEntry(ModelPrefix+"weights.lock", 1),
				listEntry(ModelPrefix+"download.metadata", 2),
				listEntry(ModelPrefix+"sub/tokenizer.json", 5),
			},
		},
	}

	dir := t.TempDir()
	var out bytes.Buffer
	client := NewWithAPI(mock, &out)

	result, err := client.FetchModel(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, int64(117), result.TotalSizeBytes)
	assert.False(t, result.Fallback)
	assert.Len(t, result.Items, 3)

	// Only eligible keys were fetched.
	assert.ElementsMatch(t, []string{
		ModelPrefix + "config.json",
		ModelPrefix + "model-00001-of-00002.safetensors",
		ModelPrefix + "sub/tokenizer.json",
	}, mock.getKeys)

	content, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 12), string(content))

	content, err = os.ReadFile(filepath.Join(dir, "sub", "tokenizer.json"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("c", 5), string(content))

	assert.Contains(t, out.String(), "Downloading: config.json (0.0000 MB)")
}

func TestFetchModelSkipsUnsafeKeys(t *testing.T) {
	mock := &mockS3{
		objects: map[string]string{
			ModelPrefix + "config.json": "ok",
		},
		listPages: [][]types.Object{
			{
				listEntry(ModelPrefix+"../escape.txt", 4),
				listEntry(ModelPrefix+"config.json", 2),
			},
		},
	}

	dir := t.TempDir()
	client := NewWithAPI(mock, io.Discard)

	result, err := client.FetchModel(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, []string{ModelPrefix + "config.json"}, mock.getKeys)
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchModelEmptyListing(t *testing.T) {
	mock := &mockS3{listPages: [][]types.Object{{}}}
	client := NewWithAPI(mock, io.Discard)

	_, err := client.FetchModel(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check bucket name and prefix")
}

func TestFetchModelListErrorPropagates(t *testing.T) {
	mock := &mockS3{
		listErr: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "gone"},
	}
	client := NewWithAPI(mock, io.Discard)

	_, err := client.FetchModel(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list objects")
	assert.Empty(t, mock.headKeys, "fallback should not run for non-access-denied errors")
}

func TestFetchModelFallbackOrder(t *testing.T) {
	indexContent := `{"metadata":{},"weight_map":{` +
		`"layers.0":"model-00001-of-00002.safetensors",` +
		`"layers.1":"model-00002-of-00002.safetensors",` +
		`"layers.2":"model-00001-of-00002.safetensors"}}`

	mock := &mockS3{
		listErr: accessDeniedErr(),
		objects: map[string]string{
			ModelPrefix + indexFile:                          indexContent,
			ModelPrefix + "config.json":                      strings.Repeat("a", 10),
			ModelPrefix + "tokenizer.json":                   strings.Repeat("b", 20),
			ModelPrefix + "model-00001-of-00002.safetensors": strings.Repeat("c", 30),
			ModelPrefix + "model-00002-of-00002.safetensors": strings.Repeat("d", 40),
		},
	}

	dir := t.TempDir()
	var out bytes.Buffer
	client := NewWithAPI(mock, &out)

	result, err := client.FetchModel(context.Background(), dir)
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, int64(len(indexContent)+10+20+30+40), result.TotalSizeBytes)

	// Index probed first, then the fixed auxiliary set, then the shard
	// filenames discovered in the weight_map, with duplicates collapsed.
	expected := []string{
		ModelPrefix + indexFile,
		ModelPrefix + "config.json",
		ModelPrefix + "tokenizer.json",
		ModelPrefix + "tokenizer_config.json",
		ModelPrefix + "special_tokens_map.json",
		ModelPrefix + "generation_config.json",
		ModelPrefix + "model-00001-of-00002.safetensors",
		ModelPrefix + "model-00002-of-00002.safetensors",
	}
	assert.Equal(t, expected, mock.headKeys)

	assert.Contains(t, out.String(), "Found 2 model files in index")

	content, err := os.ReadFile(filepath.Join(dir, "model-00002-of-00002.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("d", 40), string(content))
}

func TestFetchModelFallbackSkipsFailedDownloads(t *testing.T) {
	mock := &mockS3{
		listErr: accessDeniedErr(),
		objects: map[string]string{
			ModelPrefix + "config.json":    strings.Repeat("a", 10),
			ModelPrefix + "tokenizer.json": strings.Repeat("b", 20),
		},
		getErr: map[string]error{
			ModelPrefix + "config.json": accessDeniedErr(),
		},
	}

	dir := t.TempDir()
	var out bytes.Buffer
	client := NewWithAPI(mock, &out)

	result, err := client.FetchModel(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, int64(20), result.TotalSizeBytes)
	assert.Contains(t, out.String(), "[!] Access denied for: config.json")

	content, err := os.ReadFile(filepath.Join(dir, "tokenizer.json"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 20), string(content))
}

func TestFetchModelFallbackNoFiles(t *testing.T) {
	mock := &mockS3{
		listErr: accessDeniedErr(),
		headErr: map[string]error{},
	}
	for _, name := range append([]string{indexFile}, auxiliaryFiles...) {
		mock.headErr[ModelPrefix+name] = accessDeniedErr()
	}

	client := NewWithAPI(mock, io.Discard)

	_, err := client.FetchModel(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3:ListBucket")
	assert.Contains(t, err.Error(), "s3:GetObject")
	assert.Contains(t, err.Error(), fmt.Sprintf("arn:aws:s3:::%s", Bucket))
}

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		name       string
		listErr    error
		headErr    error
		wantList   bool
		wantObject bool
		wantErr    bool
	}{
		{"full access", nil, nil, true, true, false},
		{"get only", accessDeniedErr(), nil, false, true, false},
		{"list only, index missing", nil, notFoundErr(), true, true, false},
		{"no object access", accessDeniedErr(), accessDeniedErr(), false, false, false},
		{"unexpected list error", &smithy.GenericAPIError{Code: "NoSuchBucket"}, nil, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3{
				objects: map[string]string{ModelPrefix + indexFile: "{}"},
				listErr: tt.listErr,
				headErr: map[string]error{},
			}
			if tt.headErr != nil {
				mock.headErr[ModelPrefix+indexFile] = tt.headErr
			}

			client := NewWithAPI(mock, io.Discard)
			result, err := client.CheckAccess(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantList, result.ListAllowed)
			assert.Equal(t, tt.wantObject, result.ObjectAccess)
		})
	}
}

func TestSkippable(t *testing.T) {
	tests := []struct {
		key  string
		skip bool
	}{
		{ModelPrefix, true},
		{ModelPrefix + "sub/", true},
		{ModelPrefix + ".cache/huggingface/download", true},
		{ModelPrefix + "weights.lock", true},
		{ModelPrefix + "download.metadata", true},
		{ModelPrefix + "config.json", false},
		{ModelPrefix + "model-00001-of-00002.safetensors", false},
		{ModelPrefix + "sub/tokenizer.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.skip, skippable(tt.key))
		})
	}
}

func TestLocalPathFor(t *testing.T) {
	dir := t.TempDir()

	path, ok := localPathFor(dir, "config.json")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "config.json"), path)

	path, ok = localPathFor(dir, "sub/tokenizer.json")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "sub", "tokenizer.json"), path)

	_, ok = localPathFor(dir, "../escape.txt")
	assert.False(t, ok)

	_, ok = localPathFor(dir, "")
	assert.False(t, ok)
}
