package config

import (
	"path"

	"github.com/boltdb/bolt"
)

const resumeBucketKey = "resume_tokens"

// ResumeCache persists the content-token of a chunked upload that was
// interrupted partway through, so a retried push can ask the remote to
// continue the same upload instead of restarting it (an enrichment beyond
// a single in-memory attempt: content tokens otherwise die with the
// process). It reuses the teacher's own BoltDB-backed Index bucket idiom,
// repurposed from a file-identity cache to an upload-resume cache.
type ResumeCache struct {
	dbPath string
}

// OpenResumeCache returns a handle to the repository's resume.db. The
// database file is created lazily on first Put.
func (c *RepositoryConfig) OpenResumeCache() *ResumeCache {
	return &ResumeCache{dbPath: c.AbsPathOf(path.Join(MarkerDirSuffix, "resume.db"))}
}

// Put records the content token the remote returned for the in-progress
// upload of path, keyed by path so a later push for the same file can look
// it up.
func (r *ResumeCache) Put(path, contentToken string) error {
	db, err := bolt.Open(r.dbPath, O_RWForAll, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(byteify(resumeBucketKey))
		if err != nil {
			return err
		}
		return bucket.Put(byteify(path), byteify(contentToken))
	})
}

// Get returns the content token recorded for path, if any. A missing
// bucket or key is reported as found=false rather than surfaced as an
// error: the caller just falls back to starting the upload from byte
// zero, the same graceful-miss behavior as the teacher's own
// DeserializeIndex lookup, which this mirrors one level down (erroring
// internally on ErrNoSuchDbBucket/ErrNoSuchDbKey, then translating both
// into a plain "not found" for the caller).
func (r *ResumeCache) Get(path string) (string, bool, error) {
	db, err := bolt.Open(r.dbPath, O_RWForAll, nil)
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	var token string
	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(byteify(resumeBucketKey))
		if bucket == nil {
			return ErrNoSuchDbBucket
		}
		v := bucket.Get(byteify(path))
		if v == nil {
			return ErrNoSuchDbKey
		}
		token = string(v)
		return nil
	})

	switch err {
	case nil:
		return token, true, nil
	case ErrNoSuchDbBucket, ErrNoSuchDbKey:
		return "", false, nil
	default:
		return "", false, err
	}
}

// Clear removes the recorded token for path once its upload completes.
func (r *ResumeCache) Clear(path string) error {
	db, err := bolt.Open(r.dbPath, O_RWForAll, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(byteify(resumeBucketKey))
		if err != nil {
			return err
		}
		return bucket.Delete(byteify(path))
	})
}
