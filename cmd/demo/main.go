// Package main demonstrates wiring a KV source and a Relational source
// behind one Loader: a "users" KV source backed by an in-memory map, and a
// "posts" relational source backed by an in-memory Repo, loading users by id
// through the KV source and each user's posts by association.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/nasnet-community/batchloader"
	"github.com/nasnet-community/batchloader/internal/logging"
	"github.com/nasnet-community/batchloader/kvsource"
	"github.com/nasnet-community/batchloader/relsource"
)

func main() {
	configPath := flag.String("config", "", "optional YAML file of loader options")
	flag.Parse()

	opts := []batchloader.Option{}
	if *configPath != "" {
		fromFile, err := batchloader.LoadOptionsYAMLFile(*configPath)
		if err != nil {
			log.Fatalf("batchloader: %v", err)
		}
		opts = fromFile
	}

	logger := logging.New(logging.Config{Level: "info", Development: true})
	defer logger.Sync()

	if err := run(opts, logger); err != nil {
		log.Fatalf("demo: %v", err)
	}
}

type user struct {
	id   int64
	name string
}

type post struct {
	id       int64
	authorID int64
	title    string
}

func (p post) ID() any                { return p.id }
func (p post) Column(name string) any {
	switch name {
	case relsource.ParentIDColumn, "author_id":
		return p.authorID
	default:
		return nil
	}
}

type postRepo struct {
	posts []post
}

func (r *postRepo) FindByIDs(ctx context.Context, entity string, query any, ids []any, repoOpts any) ([]relsource.Record, error) {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id.(int64)] = true
	}
	var out []relsource.Record
	for _, p := range r.posts {
		if wanted[p.id] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *postRepo) FindByColumn(ctx context.Context, entity string, query any, column string, values []any, repoOpts any) ([]relsource.Record, error) {
	return nil, fmt.Errorf("demo: FindByColumn not used")
}

func (r *postRepo) FindByParentIDs(ctx context.Context, parentEntity, assocName string, query any, parentIDs []any, repoOpts any) ([]relsource.Record, error) {
	wanted := make(map[int64]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id.(int64)] = true
	}
	var out []relsource.Record
	for _, p := range r.posts {
		if wanted[p.authorID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func run(opts []batchloader.Option, logger *zap.Logger) error {
	loader, err := batchloader.New(opts...)
	if err != nil {
		return err
	}
	defer loader.Close()
	loader.WithLogger(logger)

	users := map[int64]user{
		1: {id: 1, name: "Alice"},
		2: {id: 2, name: "Bob"},
	}
	usersSource := kvsource.New(func(ctx context.Context, batchKey any, itemKeys []any) (map[any]any, error) {
		out := make(map[any]any, len(itemKeys))
		for _, k := range itemKeys {
			if u, ok := users[k.(int64)]; ok {
				out[k] = u
			}
		}
		return out, nil
	}, kvsource.DefaultOptions())
	loader.AddSource("users", usersSource)

	schemas := relsource.Registry{
		"users": {
			Name:       "users",
			PrimaryKey: relsource.PKInt,
			Associations: map[string]relsource.Association{
				"posts": {Name: "posts", Kind: relsource.HasMany, Target: "posts", ForeignKey: "author_id"},
			},
		},
	}
	repo := &postRepo{posts: []post{
		{id: 100, authorID: 1, title: "hello"},
		{id: 101, authorID: 1, title: "world"},
		{id: 102, authorID: 2, title: "lone post"},
	}}
	relOpts := relsource.DefaultOptions()
	relOpts.Repo = repo
	relOpts.Schemas = schemas
	loader.AddSource("posts", relsource.New(relOpts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	usersKey := batchloader.NewKey("users")
	loader.Load("users", usersKey, batchloader.NewKey(int64(1)))
	loader.Load("users", usersKey, batchloader.NewKey(int64(2)))

	postsKey := relsource.AssocKey("users", "posts", nil)
	loader.Load("posts", postsKey, relsource.ParentItemKey(int64(1)))
	loader.Load("posts", postsKey, relsource.ParentItemKey(int64(2)))

	if err := loader.Run(ctx); err != nil {
		return err
	}

	alice, err := loader.Get(ctx, "users", usersKey, batchloader.NewKey(int64(1)))
	if err != nil {
		return err
	}
	fmt.Printf("user 1: %+v\n", alice)

	alicePosts, err := loader.Get(ctx, "posts", postsKey, relsource.ParentItemKey(int64(1)))
	if err != nil {
		return err
	}
	fmt.Printf("user 1's posts: %+v\n", alicePosts)

	return nil
}
