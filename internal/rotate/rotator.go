package rotate

import (
	"context"
	stderrors "errors"
	"sync"

	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/format"
	"github.com/systmms/rotavault/internal/logging"
	"github.com/systmms/rotavault/internal/resolve"
	"github.com/systmms/rotavault/internal/vault"
)

// Store is the slice of the vault client the rotator consumes.
type Store interface {
	Read(ctx context.Context, path string) (*vault.Secret, error)
	Write(ctx context.Context, path string, data map[string]string, cas int) error
}

// Change records one rotated logical key. Old is empty and Created true
// when the key did not exist before the rotation.
type Change struct {
	Old     string `json:"old"`
	New     string `json:"new"`
	Created bool   `json:"created"`
}

// Outcome is the per-path result of a rotation. Failed paths carry Err
// and no Changes; in a batch each path's outcome is independent.
type Outcome struct {
	Path    string            `json:"path"`
	Format  format.Format     `json:"format,omitempty"`
	Changes map[string]Change `json:"changes,omitempty"`
	Err     error             `json:"-"`
}

// OK reports whether the rotation of this path succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Rotator performs read-decode-update-encode-write sequences against the
// store. It holds no mutable state between calls; mappings are read fresh
// per rotation and discarded after the write.
type Rotator struct {
	store    Store
	resolver *resolve.Resolver
	codec    *format.Codec
	logger   *logging.Logger
}

// New creates a rotator.
func New(store Store, resolver *resolve.Resolver, logger *logging.Logger) *Rotator {
	return &Rotator{
		store:    store,
		resolver: resolver,
		codec:    format.NewCodec(logger),
		logger:   logger,
	}
}

// RotateOne rotates a single logical key at path. When the key is a
// top-level field of the secret it is overwritten directly; otherwise it
// must already exist inside the governed blob, and only its value token
// is rewritten. An empty newValue rotates to a generated value.
func (r *Rotator) RotateOne(ctx context.Context, env, path, key, newValue string) Outcome {
	apiPath := NormalizePath(path)
	outcome := Outcome{Path: apiPath}

	if newValue == "" {
		newValue = GenerateSecret(DefaultSecretLength)
	}

	secret, err := r.read(ctx, apiPath)
	if err != nil {
		return r.fail(outcome, "read", err)
	}
	fields := secret.Data

	res := r.resolver.Resolve(env, path, fields)
	outcome.Format = res.Format

	if _, ok := fields[key]; ok || len(fields) == 0 {
		// Direct field overwrite, also the first-time provisioning path.
		old, existed := fields[key]
		fields[key] = newValue
		outcome.Changes = map[string]Change{
			key: {Old: old, New: newValue, Created: !existed},
		}
	} else {
		changes, err := r.updateBlob(res, fields, map[string]string{key: newValue}, true)
		if err != nil {
			return r.fail(outcome, "update", roterrors.RotationError{Path: apiPath, Op: "update", Err: err})
		}
		outcome.Changes = changes
	}

	if err := r.store.Write(ctx, apiPath, fields, secret.Version); err != nil {
		return r.fail(outcome, "write", roterrors.RotationError{Path: apiPath, Op: "write", Err: err})
	}

	rotationsTotal.WithLabelValues(string(res.Format)).Inc()
	r.logger.Info("Rotated %s at %s", key, apiPath)
	return outcome
}

// RotatePair injects an access/secret credential pair into the governed
// blob at path. Key names follow the resolver's decision; keys absent
// from the blob are appended.
func (r *Rotator) RotatePair(ctx context.Context, env, path, accessValue, secretValue string) Outcome {
	apiPath := NormalizePath(path)
	outcome := Outcome{Path: apiPath}

	secret, err := r.read(ctx, apiPath)
	if err != nil {
		return r.fail(outcome, "read", err)
	}
	fields := secret.Data

	res := r.resolver.Resolve(env, path, fields)
	outcome.Format = res.Format

	blob := fields[res.Field]
	decoded, err := r.decodeBlob(res.Format, blob)
	if err != nil {
		return r.fail(outcome, "decode", roterrors.RotationError{Path: apiPath, Op: "decode", Err: err})
	}

	accessName, secretName := resolve.PairNames(res, decoded)
	updates := map[string]string{
		accessName: accessValue,
		secretName: secretValue,
	}

	changes, err := r.updateBlob(res, fields, updates, false)
	if err != nil {
		return r.fail(outcome, "update", roterrors.RotationError{Path: apiPath, Op: "update", Err: err})
	}
	outcome.Changes = changes

	if err := r.store.Write(ctx, apiPath, fields, secret.Version); err != nil {
		return r.fail(outcome, "write", roterrors.RotationError{Path: apiPath, Op: "write", Err: err})
	}

	rotationsTotal.WithLabelValues(string(res.Format)).Inc()
	r.logger.Info("Rotated credential pair (%s, %s) at %s", accessName, secretName, apiPath)
	return outcome
}

// RotateBatch rotates key across paths. Paths run in parallel; outcomes
// come back in input order and one path's failure never affects another.
// A canceled context stops paths that have not started.
func (r *Rotator) RotateBatch(ctx context.Context, env string, paths []string, key, newValue string) []Outcome {
	outcomes := make([]Outcome, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{
				Path: NormalizePath(path),
				Err:  roterrors.RotationError{Path: NormalizePath(path), Op: "batch", Err: err},
			}
			continue
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			outcomes[i] = r.RotateOne(ctx, env, path, key, newValue)
		}(i, path)
	}

	wg.Wait()
	return outcomes
}

// read fetches the current mapping, mapping a missing path onto an empty
// mapping so first-time provisioning works.
func (r *Rotator) read(ctx context.Context, apiPath string) (*vault.Secret, error) {
	secret, err := r.store.Read(ctx, apiPath)
	if err != nil {
		if stderrors.Is(err, roterrors.ErrPathNotFound) {
			r.logger.Debug("Path %s does not exist yet; starting from an empty mapping", apiPath)
			return &vault.Secret{Data: map[string]string{}}, nil
		}
		return nil, roterrors.RotationError{Path: apiPath, Op: "read", Err: err}
	}
	return secret, nil
}

// decodeBlob decodes the governed field's current content, treating an
// absent field as an empty structure of the right format.
func (r *Rotator) decodeBlob(f format.Format, blob string) (map[string]string, error) {
	if blob == "" {
		if f == format.JSON {
			blob = "{}"
		} else {
			return map[string]string{}, nil
		}
	}
	return r.codec.Decode(f, blob)
}

// updateBlob applies updates to the governed field inside fields. JSON
// blobs merge through the codec; line formats go through the
// byte-preserving updater. Exactly one strategy runs per call. With
// requireExisting set, every updated key must already be present in the
// decoded blob.
func (r *Rotator) updateBlob(res resolve.Resolution, fields, updates map[string]string, requireExisting bool) (map[string]Change, error) {
	blob := fields[res.Field]
	decoded, err := r.decodeBlob(res.Format, blob)
	if err != nil {
		return nil, err
	}

	if requireExisting {
		for key := range updates {
			if _, ok := decoded[key]; !ok {
				return nil, roterrors.KeyNotFoundError{Key: key}
			}
		}
	}

	changes := make(map[string]Change, len(updates))

	if res.Format == format.JSON {
		for key, value := range updates {
			old, existed := decoded[key]
			decoded[key] = value
			changes[key] = Change{Old: old, New: value, Created: !existed}
		}
		encoded, err := r.codec.Encode(format.JSON, decoded)
		if err != nil {
			return nil, err
		}
		fields[res.Field] = encoded
		return changes, nil
	}

	// The line updater returns empty text unchanged, so a brand-new blob
	// is rendered canonically instead.
	if blob == "" {
		encoded, err := r.codec.Encode(res.Format, updates)
		if err != nil {
			return nil, err
		}
		fields[res.Field] = encoded
		for key, value := range updates {
			changes[key] = Change{New: value, Created: true}
		}
		return changes, nil
	}

	newBlob, oldValues, err := r.codec.Apply(res.Format, blob, updates)
	if err != nil {
		return nil, err
	}
	fields[res.Field] = newBlob
	for key, value := range updates {
		old, existed := oldValues[key]
		changes[key] = Change{Old: old, New: value, Created: !existed}
	}
	return changes, nil
}

func (r *Rotator) fail(outcome Outcome, op string, err error) Outcome {
	rotationFailuresTotal.WithLabelValues(op).Inc()
	outcome.Err = err
	outcome.Changes = nil
	r.logger.Error("%v", err)
	return outcome
}
