package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

type commentNode struct {
	Body githubv4.String
}

// HasComment reports whether any comment on issue number of repository
// ("owner/name") contains text. Pages are fetched only until a match is
// found.
func (c *Client) HasComment(ctx context.Context, repository string, number int, text string) (bool, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok {
		return false, fmt.Errorf("repository %q must have the form owner/name", repository)
	}

	fetch := func(ctx context.Context, cursor *githubv4.String) ([]commentNode, pageInfo, error) {
		var q struct {
			Repository struct {
				Issue struct {
					Comments struct {
						Nodes    []commentNode
						PageInfo pageInfo
					} `graphql:"comments(first: 100, after: $cursor)"`
				} `graphql:"issue(number: $number)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		vars := map[string]interface{}{
			"owner":  githubv4.String(owner),
			"name":   githubv4.String(repo),
			"number": githubv4.Int(number),
			"cursor": cursor,
		}
		if err := c.query(ctx, &q, vars); err != nil {
			return nil, pageInfo{}, err
		}
		return q.Repository.Issue.Comments.Nodes, q.Repository.Issue.Comments.PageInfo, nil
	}

	for comments, err := range Pages(ctx, fetch) {
		if err != nil {
			return false, fmt.Errorf("failed to list comments of %s#%d: %w", repository, number, err)
		}
		for _, cm := range comments {
			if strings.Contains(string(cm.Body), text) {
				return true, nil
			}
		}
	}
	return false, nil
}

// AddComment posts body as a comment on the issue and returns the comment URL.
func (c *Client) AddComment(ctx context.Context, subjectID, body string) (string, error) {
	var m struct {
		AddComment struct {
			CommentEdge struct {
				Node struct {
					URL githubv4.String
				}
			}
		} `graphql:"addComment(input: $input)"`
	}
	input := githubv4.AddCommentInput{
		SubjectID: githubv4.ID(subjectID),
		Body:      githubv4.String(body),
	}
	if err := c.mutate(ctx, &m, input); err != nil {
		return "", fmt.Errorf("failed to comment on %s: %w", subjectID, err)
	}
	return string(m.AddComment.CommentEdge.Node.URL), nil
}
