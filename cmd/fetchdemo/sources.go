package main

import (
	"context"

	fetch "github.com/TimothyKlim/fetch"
)

type demoUser struct {
	ID   int
	Name string
}

type demoPost struct {
	ID       int
	AuthorID int
	Title    string
}

type userSource struct {
	users map[int]demoUser
}

func newUserSource() *userSource {
	return &userSource{users: map[int]demoUser{
		1: {ID: 1, Name: "ada"},
		2: {ID: 2, Name: "grace"},
		3: {ID: 3, Name: "edsger"},
	}}
}

func (s *userSource) Name() string { return "Users" }

func (s *userSource) FetchOne(ctx context.Context, id int) fetch.Query[fetch.Option[demoUser]] {
	return fetch.Later[fetch.Option[demoUser]]{Thunk: func() (fetch.Option[demoUser], error) {
		u, ok := s.users[id]
		if !ok {
			return fetch.None[demoUser](), nil
		}
		return fetch.Some(u), nil
	}}
}

func (s *userSource) FetchMany(ctx context.Context, ids []int) fetch.Query[map[int]demoUser] {
	return fetch.Later[map[int]demoUser]{Thunk: func() (map[int]demoUser, error) {
		out := make(map[int]demoUser, len(ids))
		for _, id := range ids {
			if u, ok := s.users[id]; ok {
				out[id] = u
			}
		}
		return out, nil
	}}
}

type postSource struct {
	posts map[int]demoPost
}

func newPostSource() *postSource {
	return &postSource{posts: map[int]demoPost{
		10: {ID: 10, AuthorID: 2, Title: "notes on compilers"},
		11: {ID: 11, AuthorID: 1, Title: "analytical engines"},
	}}
}

func (s *postSource) Name() string { return "Posts" }

func (s *postSource) FetchOne(ctx context.Context, id int) fetch.Query[fetch.Option[demoPost]] {
	return fetch.Later[fetch.Option[demoPost]]{Thunk: func() (fetch.Option[demoPost], error) {
		p, ok := s.posts[id]
		if !ok {
			return fetch.None[demoPost](), nil
		}
		return fetch.Some(p), nil
	}}
}

func (s *postSource) FetchMany(ctx context.Context, ids []int) fetch.Query[map[int]demoPost] {
	return fetch.Later[map[int]demoPost]{Thunk: func() (map[int]demoPost, error) {
		out := make(map[int]demoPost, len(ids))
		for _, id := range ids {
			if p, ok := s.posts[id]; ok {
				out[id] = p
			}
		}
		return out, nil
	}}
}
