package domain

import "time"

// UploadSession is a time-boxed permission to write exactly one file to the
// storage key it names. It is consumed when the paired upload is registered.
type UploadSession struct {
	ID          string        `db:"id"`
	UserID      string        `db:"user_id"`
	StorageKey  string        `db:"storage_key"`
	ContentType string        `db:"content_type"`
	ByteSize    int64         `db:"byte_size"`
	SHA256      string        `db:"sha256"`
	KMSKeyRef   *string       `db:"kms_key_ref"`
	ExpiresAt   time.Time     `db:"expires_at"`
	Status      SessionStatus `db:"status"`
	CreatedAt   time.Time     `db:"created_at"`
}
