// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const password = "longpass1"

// client is a browser-like API client with its own cookie jar.
type client struct {
	http *http.Client
}

func newClient() *client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{http: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (c *client) do(method, path string, body any, out any) int {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, r)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	if out != nil {
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp.StatusCode
}

type profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Bio    string `json:"bio"`
	Avatar string `json:"avatar"`
}

type userResponse struct {
	User    profile `json:"user"`
	Message string  `json:"message"`
}

type author struct {
	Email string `json:"email"`
}

type comment struct {
	ID      string  `json:"id"`
	PostID  string  `json:"postId"`
	Content string  `json:"content"`
	Author  *author `json:"author"`
}

type post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"authorId"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Author   *author   `json:"author"`
	Comments []comment `json:"comments"`
}

type message struct {
	Message string `json:"message"`
}

func signUp(email string) (*client, profile) {
	c := newClient()
	var reg userResponse
	Expect(c.do(http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password}, &reg)).
		To(Equal(http.StatusOK))
	var login userResponse
	Expect(c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &login)).
		To(Equal(http.StatusOK))
	Expect(login.User.ID).To(Equal(reg.User.ID))
	return c, login.User
}

func countRows(table string) int {
	var n int
	Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM "+table).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("QueryHub API", func() {
	BeforeEach(func() {
		cleanupDatabase(env.ctx, env.pool)
	})

	Describe("accounts and sessions", func() {
		It("registers, logs in, checks the session and logs out", func() {
			alice, user := signUp("alice@example.com")
			Expect(countRows("sessions")).To(Equal(1))

			var me profile
			Expect(alice.do(http.MethodGet, "/auth/checkAuthentication", nil, &me)).To(Equal(http.StatusOK))
			Expect(me.ID).To(Equal(user.ID))
			Expect(me.Email).To(Equal("alice@example.com"))
			Expect(me.Avatar).NotTo(BeEmpty())

			var msg message
			Expect(alice.do(http.MethodPost, "/auth/logout", nil, &msg)).To(Equal(http.StatusOK))
			Expect(msg.Message).To(Equal("Logged out successfully"))
			Expect(countRows("sessions")).To(Equal(0))

			Expect(alice.do(http.MethodGet, "/auth/checkAuthentication", nil, &msg)).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a duplicate email", func() {
			signUp("dup@example.com")
			var msg message
			status := newClient().do(http.MethodPost, "/auth/register",
				map[string]string{"email": "dup@example.com", "password": password}, &msg)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(countRows("users")).To(Equal(1))
		})

		It("changes the password and keeps the old one from working", func() {
			alice, user := signUp("alice@example.com")
			var msg message
			Expect(alice.do(http.MethodPut, "/auth/"+user.ID+"/password",
				map[string]string{"oldPassword": password, "newPassword": "evenlonger2"}, &msg)).To(Equal(http.StatusOK))

			Expect(newClient().do(http.MethodPost, "/auth/login",
				map[string]string{"email": "alice@example.com", "password": password}, &msg)).To(Equal(http.StatusUnauthorized))
			Expect(newClient().do(http.MethodPost, "/auth/login",
				map[string]string{"email": "alice@example.com", "password": "evenlonger2"}, nil)).To(Equal(http.StatusOK))
		})

		It("updates the profile", func() {
			alice, user := signUp("alice@example.com")
			var updated userResponse
			Expect(alice.do(http.MethodPut, "/users/"+user.ID, map[string]string{"bio": "hello"}, &updated)).
				To(Equal(http.StatusOK))
			Expect(updated.User.Bio).To(Equal("hello"))

			var fetched profile
			Expect(newClient().do(http.MethodGet, "/users/"+user.ID, nil, &fetched)).To(Equal(http.StatusOK))
			Expect(fetched.Bio).To(Equal("hello"))
		})
	})

	Describe("posts and comments", func() {
		It("creates, lists, edits and deletes content", func() {
			alice, aliceUser := signUp("alice@example.com")
			bob, _ := signUp("bob@example.com")

			var created post
			Expect(alice.do(http.MethodPost, "/posts", map[string]string{"title": "First", "content": "Hello"}, &created)).
				To(Equal(http.StatusOK))
			Expect(created.AuthorID).To(Equal(aliceUser.ID))

			var c comment
			Expect(bob.do(http.MethodPost, "/comments", map[string]string{"postId": created.ID, "content": "Nice"}, &c)).
				To(Equal(http.StatusOK))

			var posts []post
			Expect(newClient().do(http.MethodGet, "/posts", nil, &posts)).To(Equal(http.StatusOK))
			Expect(posts).To(HaveLen(1))
			Expect(posts[0].Author.Email).To(Equal("alice@example.com"))
			Expect(posts[0].Comments).To(HaveLen(1))
			Expect(posts[0].Comments[0].Content).To(Equal("Nice"))

			var byAuthor []post
			Expect(newClient().do(http.MethodGet, "/posts/author/"+aliceUser.ID, nil, &byAuthor)).To(Equal(http.StatusOK))
			Expect(byAuthor).To(HaveLen(1))

			var comments []comment
			Expect(newClient().do(http.MethodGet, "/comments/post/"+created.ID, nil, &comments)).To(Equal(http.StatusOK))
			Expect(comments).To(HaveLen(1))
			Expect(comments[0].Author.Email).To(Equal("bob@example.com"))

			var msg message
			Expect(bob.do(http.MethodPut, "/posts/"+created.ID, map[string]string{"title": "Mine", "content": "now"}, &msg)).
				To(Equal(http.StatusForbidden))
			Expect(alice.do(http.MethodDelete, "/comments/"+c.ID, nil, &msg)).To(Equal(http.StatusForbidden))

			var edited post
			Expect(alice.do(http.MethodPut, "/posts/"+created.ID, map[string]string{"title": "First!", "content": "Hello"}, &edited)).
				To(Equal(http.StatusOK))
			Expect(edited.Title).To(Equal("First!"))

			Expect(alice.do(http.MethodDelete, "/posts/"+created.ID, nil, &msg)).To(Equal(http.StatusOK))
			Expect(countRows("posts")).To(Equal(0))
			Expect(countRows("comments")).To(Equal(0))
		})

		It("requires a session to write", func() {
			var msg message
			Expect(newClient().do(http.MethodPost, "/posts", map[string]string{"title": "x", "content": "y"}, &msg)).
				To(Equal(http.StatusUnauthorized))
		})

		It("removes a deleted user's posts and comments", func() {
			alice, aliceUser := signUp("alice@example.com")
			bob, _ := signUp("bob@example.com")

			var p post
			Expect(alice.do(http.MethodPost, "/posts", map[string]string{"title": "T", "content": "C"}, &p)).
				To(Equal(http.StatusOK))
			Expect(alice.do(http.MethodPost, "/comments", map[string]string{"postId": p.ID, "content": "self"}, nil)).
				To(Equal(http.StatusOK))

			var other post
			Expect(bob.do(http.MethodPost, "/posts", map[string]string{"title": "B", "content": "D"}, &other)).
				To(Equal(http.StatusOK))
			Expect(alice.do(http.MethodPost, "/comments", map[string]string{"postId": other.ID, "content": "hi bob"}, nil)).
				To(Equal(http.StatusOK))

			var msg message
			Expect(alice.do(http.MethodDelete, "/users/"+aliceUser.ID, nil, &msg)).To(Equal(http.StatusOK))

			Expect(countRows("users")).To(Equal(1))
			Expect(countRows("posts")).To(Equal(1))
			Expect(countRows("comments")).To(Equal(0))
			Expect(countRows("sessions")).To(Equal(1))
		})
	})
})
