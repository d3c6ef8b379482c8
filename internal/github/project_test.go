package github

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/statusnotify/internal/logging"
)

const projectItemsOrg = `{"data":{"organization":{"projectV2":{"items":{
  "nodes":[
    {"id":"PVTI_1","fieldValueByName":{"name":"QA Testing"},
     "content":{"__typename":"Issue","id":"I_10","number":10,"title":"Crash on save","url":"https://github.com/acme/web/issues/10","state":"OPEN",
       "repository":{"nameWithOwner":"acme/web"},
       "labels":{"nodes":[]},
       "assignees":{"nodes":[{"login":"mona","name":"Mona","email":"mona@example.com"}]}}},
    {"id":"PVTI_2","fieldValueByName":{"name":"Todo"},
     "content":{"__typename":"DraftIssue"}},
    {"id":"PVTI_3","fieldValueByName":null,
     "content":{"__typename":"PullRequest"}},
    {"id":"PVTI_4","fieldValueByName":{"name":"In Progress"},
     "content":{"__typename":"Issue","id":"I_11","number":11,"title":"Closed one","url":"https://github.com/acme/web/issues/11","state":"CLOSED",
       "repository":{"nameWithOwner":"acme/web"},
       "labels":{"nodes":[{"name":"qa-notified"}]},
       "assignees":{"nodes":[]}}}
  ],
  "pageInfo":{"hasNextPage":false,"endCursor":null}}}}}}`

const projectItemsPage1 = `{"data":{"organization":{"projectV2":{"items":{
  "nodes":[
    {"id":"PVTI_1","fieldValueByName":{"name":"QA Testing"},
     "content":{"__typename":"Issue","id":"I_20","number":20,"title":"First page","url":"https://github.com/acme/web/issues/20","state":"OPEN",
       "repository":{"nameWithOwner":"acme/web"},
       "labels":{"nodes":[]},"assignees":{"nodes":[]}}}
  ],
  "pageInfo":{"hasNextPage":true,"endCursor":"cGFnZTox"}}}}}}`

const projectItemsPage2 = `{"data":{"organization":{"projectV2":{"items":{
  "nodes":[
    {"id":"PVTI_2","fieldValueByName":{"name":"Done"},
     "content":{"__typename":"Issue","id":"I_21","number":21,"title":"Second page","url":"https://github.com/acme/web/issues/21","state":"OPEN",
       "repository":{"nameWithOwner":"acme/web"},
       "labels":{"nodes":[]},"assignees":{"nodes":[]}}}
  ],
  "pageInfo":{"hasNextPage":false,"endCursor":"cGFnZToy"}}}}}}`

func TestParseOwnerType(t *testing.T) {
	ot, err := ParseOwnerType("user")
	require.NoError(t, err)
	assert.Equal(t, OwnerUser, ot)

	_, err = ParseOwnerType("enterprise")
	assert.Error(t, err)
}

func TestProjectItems_FetchOrganization(t *testing.T) {
	fake, server := newFakeGraphQL(t, projectItemsOrg)
	var logs bytes.Buffer
	client := NewClient(context.Background(), server.URL, StaticTokenSource("t"),
		WithGraphQLHTTPClient(server.Client()),
		WithLogger(logging.New(&logs, "")))

	src, err := NewProjectItems(client, OwnerOrganization, "acme", 5, "Status")
	require.NoError(t, err)

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "I_10", got[0].Issue.ID)
	assert.Equal(t, "QA Testing", got[0].Status)
	assert.Equal(t, "acme/web", got[0].Issue.Repository)
	assert.Equal(t, []string{"mona@example.com"}, got[0].Issue.Emails())

	assert.Equal(t, "I_11", got[1].Issue.ID)
	assert.False(t, got[1].Issue.IsOpen())
	assert.True(t, got[1].Issue.HasLabel("QA-Notified"))

	assert.Contains(t, logs.String(), "project item PVTI_2 is not an issue (DraftIssue)")
	assert.Contains(t, logs.String(), "project item PVTI_3 is not an issue (PullRequest)")

	req := fake.request(0)
	assert.Contains(t, req.Query, "organization(login: $owner)")
	assert.Contains(t, req.Query, "projectV2(number: $projectNumber)")
	assert.Contains(t, req.Query, "... on Issue")
	assert.EqualValues(t, 5, req.Variables["projectNumber"])
}

func TestProjectItems_FetchUser(t *testing.T) {
	fake, server := newFakeGraphQL(t, `{"data":{"user":{"projectV2":{"items":{"nodes":[],"pageInfo":{"hasNextPage":false,"endCursor":null}}}}}}`)
	src, err := NewProjectItems(newTestClient(t, server), OwnerUser, "octocat", 1, "Status")
	require.NoError(t, err)

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, fake.request(0).Query, "user(login: $owner)")
}

func TestProjectItems_FetchPages(t *testing.T) {
	fake, server := newFakeGraphQL(t, projectItemsPage1, projectItemsPage2)
	src, err := NewProjectItems(newTestClient(t, server), OwnerOrganization, "acme", 5, "Status")
	require.NoError(t, err)

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "I_20", got[0].Issue.ID)
	assert.Equal(t, "QA Testing", got[0].Status)
	assert.Equal(t, "I_21", got[1].Issue.ID)
	assert.Equal(t, "Done", got[1].Status)

	require.Equal(t, 2, fake.count())
	assert.Nil(t, fake.request(0).Variables["cursor"])
	assert.Equal(t, "cGFnZTox", fake.request(1).Variables["cursor"])
}

func TestProjectItems_FetchPartialOnError(t *testing.T) {
	_, server := newFakeGraphQL(t, projectItemsPage1, `{"errors":[{"message":"API rate limit exceeded"}]}`)
	src, err := NewProjectItems(newTestClient(t, server), OwnerOrganization, "acme", 5, "Status")
	require.NoError(t, err)

	got, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Contains(t, err.Error(), "project 5")
	require.Len(t, got, 1, "first page results survive the failure")
	assert.Equal(t, "I_20", got[0].Issue.ID)
}

func TestNewProjectItems_Validation(t *testing.T) {
	_, err := NewProjectItems(nil, OwnerType("team"), "acme", 1, "Status")
	assert.Error(t, err)

	_, err = NewProjectItems(nil, OwnerOrganization, "", 1, "Status")
	assert.Error(t, err)
}
