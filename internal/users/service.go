// Package users is the surface the HTTP API and the CLI talk to. Every
// change goes through a branch transaction; reads go straight to the base
// ref.
package users

import (
	"context"
	"fmt"

	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/txn"
	"ghusers/internal/validation"
	"ghusers/internal/vcs"

	"go.uber.org/zap"
)

type Service struct {
	store    vcs.Store
	coord    *txn.Coordinator
	progress *txn.Broadcaster
	baseRef  string
	path     string
	logger   *zap.Logger
}

// NewService builds the coordinator from opts. Progress events go to the
// service's broadcaster and to opts.OnProgress if set.
func NewService(store vcs.Store, opts txn.Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	progress := txn.NewBroadcaster(0)
	onProgress := opts.OnProgress
	opts.OnProgress = func(p txn.Progress) {
		progress.Publish(p)
		if onProgress != nil {
			onProgress(p)
		}
	}

	coord, err := txn.New(store, opts)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:    store,
		coord:    coord,
		progress: progress,
		baseRef:  opts.BaseRef,
		path:     opts.Path,
		logger:   opts.Logger,
	}, nil
}

// ListUsers reads the document on the base ref. A missing file is an empty
// document.
func (s *Service) ListUsers(ctx context.Context) (document.Document, error) {
	f, err := s.store.ReadFile(ctx, s.path, s.baseRef)
	if errors.Is(err, errors.ErrorTypeFileNotFound) {
		return document.Document{Users: []document.User{}}, nil
	}
	if err != nil {
		return document.Document{}, err
	}
	return document.Decode(f.Content)
}

func (s *Service) GetUser(ctx context.Context, id int) (document.User, error) {
	doc, err := s.ListUsers(ctx)
	if err != nil {
		return document.User{}, err
	}
	return document.Find(doc, id)
}

// FindUsers lists the users matching filter. An empty filter matches all.
func (s *Service) FindUsers(ctx context.Context, filter string) ([]document.User, error) {
	doc, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return doc.Users, nil
	}

	f, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}
	return f.Apply(doc.Users)
}

func (s *Service) InsertUser(ctx context.Context, username, status string) (document.User, error) {
	username, status, err := validation.User(username, status)
	if err != nil {
		return document.User{}, err
	}

	var created document.User
	_, err = s.coord.Execute(ctx, "add user "+username, func(doc document.Document) (document.Document, error) {
		next, u, err := document.Insert(doc, username, status)
		if err != nil {
			return doc, err
		}
		created = u
		return next, nil
	})
	if err != nil {
		return document.User{}, err
	}

	s.logger.Info("user added", zap.Int("id", created.ID), zap.String("username", created.Username))
	return created, nil
}

func (s *Service) EditUser(ctx context.Context, id int, username, status string) error {
	if id <= 0 {
		return errors.ValidationError("id must be positive", nil)
	}
	username, status, err := validation.User(username, status)
	if err != nil {
		return err
	}

	_, err = s.coord.Execute(ctx, fmt.Sprintf("edit user %d", id), func(doc document.Document) (document.Document, error) {
		return document.Update(doc, id, username, status)
	})
	return err
}

func (s *Service) DeleteUser(ctx context.Context, id int) error {
	if id <= 0 {
		return errors.ValidationError("id must be positive", nil)
	}

	_, err := s.coord.Execute(ctx, fmt.Sprintf("delete user %d", id), func(doc document.Document) (document.Document, error) {
		return document.Remove(doc, id)
	})
	return err
}

// Subscribe streams progress events of every transaction this service runs.
func (s *Service) Subscribe() (<-chan txn.Progress, func()) {
	return s.progress.Subscribe()
}
