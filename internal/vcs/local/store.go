// internal/vcs/local/store.go
package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"ghusers/internal/errors"
	"ghusers/internal/safe"
	"ghusers/internal/storage"
	"ghusers/internal/vcs"
	"ghusers/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Commit is an immutable snapshot of the tracked files.
type Commit struct {
	ID        string            `json:"id"`
	Parent    string            `json:"parent,omitempty"`
	Merged    string            `json:"merged,omitempty"` // head of a merge commit
	Files     map[string]string `json:"files"`            // path -> blob hash
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

func (c *Commit) GetID() string {
	return c.ID
}

type ref struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

func (r *ref) GetID() string {
	return r.Name
}

// Options configures a Store.
type Options struct {
	CacheSize   int
	Compression safe.CompressionOptions
	Logger      *zap.Logger
}

// Store is a versioned content store kept in badger. It offers the same
// semantics as the remote store: refs point at commits, writes are guarded by
// the blob hash of the file being replaced, and merges only succeed when the
// base is an ancestor of the head.
type Store struct {
	refs    *storage.BadgerStore
	commits *storage.BadgerStore
	blobs   *safe.Safe
	logger  *zap.Logger
	now     func() time.Time
}

var _ vcs.Store = (*Store)(nil)

func New(db *badger.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	blobs, err := safe.New(db, safe.Options{
		CacheSize:   opts.CacheSize,
		Compression: opts.Compression,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing blob safe: %w", err)
	}

	return &Store{
		refs:    storage.NewBadgerStore(db, "ref"),
		commits: storage.NewBadgerStore(db, "commit"),
		blobs:   blobs,
		logger:  opts.Logger,
		now:     time.Now,
	}, nil
}

// Init creates base pointing at an empty root commit unless it already exists.
func (s *Store) Init(ctx context.Context, base string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	var r ref
	if err := s.refs.Get(base, &r); err == nil {
		return nil
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return errors.Internal("reading ref "+base, err)
	}

	root, err := s.newCommit("", "", map[string]string{}, "initialize "+base)
	if err != nil {
		return err
	}
	if err := s.refs.Create(&ref{Name: base, Commit: root.ID}); err != nil {
		if stderrors.Is(err, storage.ErrExists) {
			return nil
		}
		return errors.Internal("creating ref "+base, err)
	}

	s.logger.Info("initialized store", zap.String("ref", base), zap.String("commit", root.ID))
	return nil
}

func (s *Store) GetRef(ctx context.Context, name string) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}

	r, err := s.getRef(name)
	if err != nil {
		return "", err
	}
	return r.Commit, nil
}

func (s *Store) CreateRef(ctx context.Context, name, fromToken string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if _, err := s.getCommit(fromToken); err != nil {
		return err
	}

	if err := s.refs.Create(&ref{Name: name, Commit: fromToken}); err != nil {
		if stderrors.Is(err, storage.ErrExists) {
			return errors.RefConflict(name)
		}
		return errors.Internal("creating ref "+name, err)
	}
	return nil
}

func (s *Store) ReadFile(ctx context.Context, path, refName string) (*vcs.File, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r, err := s.getRef(refName)
	if err != nil {
		return nil, err
	}
	return s.readFile(r.Commit, path, refName)
}

// ReadFileAt reads path as of a commit rather than a ref.
func (s *Store) ReadFileAt(ctx context.Context, commitID, path string) (*vcs.File, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return s.readFile(commitID, path, commitID)
}

func (s *Store) readFile(commitID, path, label string) (*vcs.File, error) {
	c, err := s.getCommit(commitID)
	if err != nil {
		return nil, err
	}

	hash, ok := c.Files[path]
	if !ok {
		return nil, errors.FileNotFound(path, label)
	}
	content, err := s.blobs.Get(hash)
	if err != nil {
		return nil, errors.Internal("reading blob "+hash, err)
	}

	return &vcs.File{
		Content: []byte(base64.StdEncoding.EncodeToString(content)),
		Token:   hash,
	}, nil
}

func (s *Store) WriteFile(ctx context.Context, req vcs.WriteRequest) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	content, err := base64.StdEncoding.DecodeString(string(bytes.ReplaceAll(req.Content, []byte("\n"), nil)))
	if err != nil {
		return errors.ValidationError("content is not base64", err.Error())
	}
	hash, err := s.blobs.Put(content)
	if err != nil {
		return errors.Internal("storing blob", err)
	}

	var r ref
	err = s.refs.Mutate(req.Ref, &r, func(exists bool) error {
		if !exists {
			return errors.RefNotFound(req.Ref)
		}
		parent, err := s.getCommit(r.Commit)
		if err != nil {
			return err
		}
		if parent.Files[req.Path] != req.ExpectedToken {
			return errors.WriteConflict(req.Path, req.Ref)
		}

		files := make(map[string]string, len(parent.Files)+1)
		for p, h := range parent.Files {
			files[p] = h
		}
		files[req.Path] = hash

		c, err := s.newCommit(parent.ID, "", files, req.Message)
		if err != nil {
			return err
		}
		r.Commit = c.ID
		return nil
	})
	if stderrors.Is(err, storage.ErrConflict) {
		return errors.WriteConflict(req.Path, req.Ref)
	}
	return asTyped("writing "+req.Path, err)
}

func (s *Store) MergeRef(ctx context.Context, base, head, message string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	headRef, err := s.getRef(head)
	if err != nil {
		return err
	}

	var r ref
	err = s.refs.Mutate(base, &r, func(exists bool) error {
		if !exists {
			return errors.RefNotFound(base)
		}
		if r.Commit == headRef.Commit {
			return nil
		}

		ok, err := s.isAncestor(r.Commit, headRef.Commit)
		if err != nil {
			return err
		}
		if !ok {
			return errors.MergeConflict(base, head)
		}

		headCommit, err := s.getCommit(headRef.Commit)
		if err != nil {
			return err
		}
		c, err := s.newCommit(r.Commit, headCommit.ID, headCommit.Files, message)
		if err != nil {
			return err
		}
		r.Commit = c.ID
		return nil
	})
	if stderrors.Is(err, storage.ErrConflict) {
		return errors.MergeConflict(base, head)
	}
	return asTyped("merging "+head+" into "+base, err)
}

func (s *Store) DeleteRef(ctx context.Context, name string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if err := s.refs.Delete(name); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		if stderrors.Is(err, storage.ErrConflict) {
			return errors.Transient("deleting ref "+name, err)
		}
		return errors.Internal("deleting ref "+name, err)
	}
	return nil
}

// Refs lists every ref name in sorted order.
func (s *Store) Refs() ([]string, error) {
	names, err := s.refs.IDs()
	if err != nil {
		return nil, errors.Internal("listing refs", err)
	}
	sort.Strings(names)
	return names, nil
}

// Log walks first parents from the commit ref points at.
func (s *Store) Log(ctx context.Context, refName string, limit int) ([]*Commit, error) {
	r, err := s.getRef(refName)
	if err != nil {
		return nil, err
	}

	var log []*Commit
	for id := r.Commit; id != "" && (limit <= 0 || len(log) < limit); {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		c, err := s.getCommit(id)
		if err != nil {
			return nil, err
		}
		log = append(log, c)
		id = c.Parent
	}
	return log, nil
}

func (s *Store) getRef(name string) (*ref, error) {
	var r ref
	if err := s.refs.Get(name, &r); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.RefNotFound(name)
		}
		return nil, errors.Internal("reading ref "+name, err)
	}
	return &r, nil
}

func (s *Store) getCommit(id string) (*Commit, error) {
	if id == "" {
		return nil, errors.RefNotFound(id)
	}
	var c Commit
	if err := s.commits.Get(id, &c); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.RefNotFound(id)
		}
		return nil, errors.Internal("reading commit "+id, err)
	}
	return &c, nil
}

func (s *Store) newCommit(parent, merged string, files map[string]string, message string) (*Commit, error) {
	c := &Commit{
		Parent:    parent,
		Merged:    merged,
		Files:     files,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Internal("marshaling commit", err)
	}
	c.ID = utils.HashContent(data)

	if err := s.commits.Create(c); err != nil && !stderrors.Is(err, storage.ErrExists) {
		return nil, errors.Internal("storing commit", err)
	}
	return c, nil
}

// isAncestor reports whether ancestor is reachable from descendant through
// parent or merge links.
func (s *Store) isAncestor(ancestor, descendant string) (bool, error) {
	seen := map[string]bool{}
	queue := []string{descendant}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == ancestor {
			return true, nil
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		c, err := s.getCommit(id)
		if err != nil {
			return false, err
		}
		queue = append(queue, c.Parent, c.Merged)
	}
	return false, nil
}

func checkContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Transient("store call timed out", err)
	default:
		return errors.Canceled(err)
	}
}

func asTyped(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Internal(op, err)
}
