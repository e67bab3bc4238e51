package rotate_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/rotavault/internal/config"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/format"
	"github.com/systmms/rotavault/internal/logging"
	"github.com/systmms/rotavault/internal/resolve"
	"github.com/systmms/rotavault/internal/rotate"
	"github.com/systmms/rotavault/internal/vault"
)

// fakeStore is an in-memory Store with CAS semantics.
type fakeStore struct {
	mu       sync.Mutex
	secrets  map[string]*vault.Secret
	readErr  map[string]error
	writeErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		secrets:  make(map[string]*vault.Secret),
		readErr:  make(map[string]error),
		writeErr: make(map[string]error),
	}
}

func (s *fakeStore) put(path string, version int, data map[string]string) {
	s.secrets[path] = &vault.Secret{Data: data, Version: version}
}

func (s *fakeStore) Read(_ context.Context, path string) (*vault.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[path]; err != nil {
		return nil, err
	}
	secret, ok := s.secrets[path]
	if !ok {
		return nil, roterrors.ErrPathNotFound
	}
	// Copy so the rotator's mutations don't leak back before Write.
	data := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		data[k] = v
	}
	return &vault.Secret{Data: data, Version: secret.Version}, nil
}

func (s *fakeStore) Write(_ context.Context, path string, data map[string]string, cas int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[path]; err != nil {
		return err
	}
	current := 0
	if secret, ok := s.secrets[path]; ok {
		current = secret.Version
	}
	if cas != current {
		return roterrors.WriteConflictError{Path: path, Version: cas}
	}
	s.secrets[path] = &vault.Secret{Data: data, Version: current + 1}
	return nil
}

func newRotator(store *fakeStore, def *config.Definition) *rotate.Rotator {
	logger := logging.New(false, true)
	return rotate.New(store, resolve.New(def, logger), logger)
}

func TestRotateOneInsideShellExportBlob(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 3, map[string]string{
		"dotenv": "export DB_HOST=\"old\"\n# comment\nexport DB_PORT=\"5432\"",
	})

	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "kv/team/app", "DB_HOST", "new")
	require.NoError(t, outcome.Err)
	assert.Equal(t, format.ShellExport, outcome.Format)
	assert.Equal(t, rotate.Change{Old: "old", New: "new"}, outcome.Changes["DB_HOST"])

	written := store.secrets["kv/data/team/app"]
	assert.Equal(t, "export DB_HOST=\"new\"\n# comment\nexport DB_PORT=\"5432\"", written.Data["dotenv"])
	assert.Equal(t, 4, written.Version)
}

func TestRotateOneTopLevelField(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{
		"api_token": "old-token",
		"dotenv":    `export FOO="bar"`,
	})

	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "team/app", "api_token", "new-token")
	require.NoError(t, outcome.Err)
	assert.Equal(t, rotate.Change{Old: "old-token", New: "new-token"}, outcome.Changes["api_token"])
	// The blob is untouched by a direct field rotation.
	assert.Equal(t, `export FOO="bar"`, store.secrets["kv/data/team/app"].Data["dotenv"])
}

func TestRotateOneGeneratesValueWhenEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{"api_token": "old"})

	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "team/app", "api_token", "")
	require.NoError(t, outcome.Err)
	change := outcome.Changes["api_token"]
	assert.Equal(t, "old", change.Old)
	assert.Len(t, change.New, rotate.DefaultSecretLength)
}

func TestRotateOneMissingKeyInBlob(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{
		"dotenv": `export FOO="bar"`,
	})

	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "team/app", "MISSING", "x")
	require.Error(t, outcome.Err)

	var keyErr roterrors.KeyNotFoundError
	require.ErrorAs(t, outcome.Err, &keyErr)
	assert.Equal(t, "MISSING", keyErr.Key)

	var rotErr roterrors.RotationError
	require.ErrorAs(t, outcome.Err, &rotErr)
	assert.Equal(t, "kv/data/team/app", rotErr.Path)
}

// A missing path reads as an empty mapping so first-time provisioning
// writes the key as a fresh top-level field.
func TestRotateOneProvisionsMissingPath(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "team/new-app", "api_token", "v1")
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Changes["api_token"].Created)
	assert.Equal(t, "v1", store.secrets["kv/data/team/new-app"].Data["api_token"])
}

func TestRotateOneJSONBlobViaCodec(t *testing.T) {
	t.Parallel()

	def := &config.Definition{
		Version: 1,
		Environments: map[string]config.Environment{
			"prod": {
				VaultURL: "https://vault.example.com",
				Apps: map[string]config.App{
					"app": {Paths: []config.PathRule{{
						Path:   "team/app",
						Format: "json",
						Key:    "secrets",
					}}},
				},
			},
		},
	}
	store := newFakeStore()
	store.put("kv/data/team/app", 2, map[string]string{
		"secrets": `{"a":"1"}`,
	})

	outcome := newRotator(store, def).RotateOne(context.Background(), "prod", "kv/team/app", "a", "2")
	require.NoError(t, outcome.Err)
	assert.Equal(t, rotate.Change{Old: "1", New: "2"}, outcome.Changes["a"])
	assert.JSONEq(t, `{"a":"2"}`, store.secrets["kv/data/team/app"].Data["secrets"])
}

func TestRotatePairPreservesNamingConvention(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{
		"dotenv": "export MINIO_ACCESS_KEY=\"a-old\"\nexport MINIO_SECRET_KEY=\"s-old\"",
	})

	outcome := newRotator(store, nil).RotatePair(context.Background(), "", "team/app", "a-new", "s-new")
	require.NoError(t, outcome.Err)
	assert.Equal(t, rotate.Change{Old: "a-old", New: "a-new"}, outcome.Changes["MINIO_ACCESS_KEY"])
	assert.Equal(t, rotate.Change{Old: "s-old", New: "s-new"}, outcome.Changes["MINIO_SECRET_KEY"])

	blob := store.secrets["kv/data/team/app"].Data["dotenv"]
	assert.Equal(t, "export MINIO_ACCESS_KEY=\"a-new\"\nexport MINIO_SECRET_KEY=\"s-new\"", blob)
}

// A JSON blob whose keys match no known suffix gets synthesized S3 names.
func TestRotatePairSynthesizesJSONNames(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{
		"config": `{"existingAccessKey":"x"}`,
	})

	outcome := newRotator(store, nil).RotatePair(context.Background(), "", "team/app", "a-new", "s-new")
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Changes["S3_ACCESS_KEY"].Created)
	assert.True(t, outcome.Changes["S3_SECRET_KEY"].Created)

	blob := store.secrets["kv/data/team/app"].Data["config"]
	assert.JSONEq(t, `{"existingAccessKey":"x","S3_ACCESS_KEY":"a-new","S3_SECRET_KEY":"s-new"}`, blob)
}

// Injecting into an empty secret provisions the default blob field in
// canonical syntax.
func TestRotatePairProvisionsEmptySecret(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	outcome := newRotator(store, nil).RotatePair(context.Background(), "", "team/new-app", "AKIA123", "wJalr456")
	require.NoError(t, outcome.Err)

	blob := store.secrets["kv/data/team/new-app"].Data["dotenv"]
	assert.Contains(t, blob, `export AWS_ACCESS_KEY_ID="AKIA123"`)
	assert.Contains(t, blob, `export AWS_SECRET_ACCESS_KEY="wJalr456"`)
}

func TestRotateOneMalformedJSONBlob(t *testing.T) {
	t.Parallel()

	def := &config.Definition{
		Version: 1,
		Environments: map[string]config.Environment{
			"prod": {
				VaultURL: "https://vault.example.com",
				Apps: map[string]config.App{
					"app": {Paths: []config.PathRule{{Path: "team/app", Format: "json", Key: "secrets"}}},
				},
			},
		},
	}
	store := newFakeStore()
	store.put("kv/data/team/app", 1, map[string]string{"secrets": "not json"})

	outcome := newRotator(store, def).RotateOne(context.Background(), "prod", "team/app", "a", "2")
	require.Error(t, outcome.Err)
	var fmtErr roterrors.FormatError
	assert.ErrorAs(t, outcome.Err, &fmtErr)
}

func TestRotateWriteConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/app", 2, map[string]string{"api_token": "old"})
	store.writeErr["kv/data/team/app"] = roterrors.WriteConflictError{Path: "kv/data/team/app", Version: 2}

	outcome := newRotator(store, nil).RotateOne(context.Background(), "", "team/app", "api_token", "new")
	require.Error(t, outcome.Err)
	var conflict roterrors.WriteConflictError
	assert.ErrorAs(t, outcome.Err, &conflict)
}

func TestRotateBatchIndependentFailures(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("kv/data/team/ok-1", 1, map[string]string{"api_token": "a"})
	store.put("kv/data/team/ok-2", 1, map[string]string{"api_token": "b"})
	store.readErr["kv/data/team/bad"] = stderrors.New("boom")

	paths := []string{"team/ok-1", "team/bad", "team/ok-2"}
	outcomes := newRotator(store, nil).RotateBatch(context.Background(), "", paths, "api_token", "new")

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.True(t, outcomes[2].OK())

	// Result order follows input order regardless of scheduling.
	assert.Equal(t, "kv/data/team/ok-1", outcomes[0].Path)
	assert.Equal(t, "kv/data/team/bad", outcomes[1].Path)
	assert.Equal(t, "kv/data/team/ok-2", outcomes[2].Path)

	assert.Equal(t, "new", store.secrets["kv/data/team/ok-1"].Data["api_token"])
	assert.Equal(t, "new", store.secrets["kv/data/team/ok-2"].Data["api_token"])
}

func TestRotateBatchCanceledContext(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := newRotator(store, nil).RotateBatch(ctx, "", []string{"team/app"}, "k", "v")
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}
