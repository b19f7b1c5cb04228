// Copyright (c) 2026 BVK Chaitanya

// Package store keeps trade state snapshots in a key-value database.
package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/bvk/fulfill/gobs"
	"github.com/bvkgo/kv"
)

const Keyspace = "/trades"

// TradeKey returns the database key for a trade uid.
func TradeKey(uid string) string {
	return path.Join(Keyspace, uid)
}

func Save(ctx context.Context, rw kv.ReadWriter, state *gobs.TradeState) error {
	if state == nil || len(state.UID) == 0 {
		return fmt.Errorf("trade state has no uid: %w", os.ErrInvalid)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return fmt.Errorf("could not gob-encode trade %q: %w", state.UID, err)
	}
	return rw.Set(ctx, TradeKey(state.UID), &buf)
}

func Load(ctx context.Context, r kv.Reader, uid string) (*gobs.TradeState, error) {
	key := TradeKey(uid)
	value, err := r.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("could not get trade at %q: %w", key, err)
	}
	state := new(gobs.TradeState)
	if err := gob.NewDecoder(value).Decode(state); err != nil {
		return nil, fmt.Errorf("could not gob-decode trade at %q: %w", key, err)
	}
	return state, nil
}

// List returns all saved trades in the uid order.
func List(ctx context.Context, r kv.Reader) ([]*gobs.TradeState, error) {
	begin, end := pathRange(Keyspace)
	it, err := r.Ascend(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	defer kv.Close(it)

	var states []*gobs.TradeState
	for k, v, err := it.Fetch(ctx, false); err == nil; k, v, err = it.Fetch(ctx, true) {
		state := new(gobs.TradeState)
		if err := gob.NewDecoder(v).Decode(state); err != nil {
			return nil, fmt.Errorf("could not decode value at key %q: %w", k, err)
		}
		states = append(states, state)
	}
	if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not complete ascend: %w", err)
	}
	return states, nil
}

// SaveDB saves the trade state in a new read-write transaction.
func SaveDB(ctx context.Context, db kv.Database, state *gobs.TradeState) error {
	return kv.WithReadWriter(ctx, db, func(ctx context.Context, rw kv.ReadWriter) error {
		return Save(ctx, rw, state)
	})
}

func LoadDB(ctx context.Context, db kv.Database, uid string) (state *gobs.TradeState, err error) {
	err = kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		state, err = Load(ctx, r, uid)
		return err
	})
	return state, err
}

func ListDB(ctx context.Context, db kv.Database) (states []*gobs.TradeState, err error) {
	err = kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		states, err = List(ctx, r)
		return err
	})
	return states, err
}

// FindDB looks up a trade by its uid or by a unique uid prefix.
func FindDB(ctx context.Context, db kv.Database, prefix string) (*gobs.TradeState, error) {
	if len(prefix) == 0 {
		return nil, os.ErrInvalid
	}
	if state, err := LoadDB(ctx, db, prefix); err == nil {
		return state, nil
	}
	states, err := ListDB(ctx, db)
	if err != nil {
		return nil, err
	}
	var found *gobs.TradeState
	for _, s := range states {
		if !strings.HasPrefix(s.UID, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("trade uid prefix %q is ambiguous: %w", prefix, os.ErrInvalid)
		}
		found = s
	}
	if found == nil {
		return nil, fmt.Errorf("trade %q: %w", prefix, os.ErrNotExist)
	}
	return found, nil
}

func pathRange(dir string) (begin string, end string) {
	dir = path.Clean(dir)
	return dir + "/", dir + string('/'+1)
}
