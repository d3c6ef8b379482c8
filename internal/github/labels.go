package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// ErrLabelNotFound is returned when a repository has no label by that name.
var ErrLabelNotFound = errors.New("label not found")

// LabelID returns the node ID of the named label in repository
// ("owner/name"). Lookups are cached for the life of the client.
func (c *Client) LabelID(ctx context.Context, repository, name string) (string, error) {
	key := strings.ToLower(repository + "\x00" + name)

	c.mu.Lock()
	id, ok := c.labels[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	owner, repo, found := strings.Cut(repository, "/")
	if !found {
		return "", fmt.Errorf("repository %q must have the form owner/name", repository)
	}

	var q struct {
		Repository struct {
			Label struct {
				ID githubv4.ID
			} `graphql:"label(name: $label)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"label": githubv4.String(name),
	}
	if err := c.query(ctx, &q, vars); err != nil {
		return "", fmt.Errorf("failed to look up label %q in %s: %w", name, repository, err)
	}

	id = nodeID(q.Repository.Label.ID)
	if id == "" {
		return "", fmt.Errorf("%w: %q in %s", ErrLabelNotFound, name, repository)
	}

	c.mu.Lock()
	c.labels[key] = id
	c.mu.Unlock()
	return id, nil
}

// AddLabels attaches labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, labelableID string, labelIDs ...string) error {
	if len(labelIDs) == 0 {
		return nil
	}

	ids := make([]githubv4.ID, 0, len(labelIDs))
	for _, id := range labelIDs {
		ids = append(ids, githubv4.ID(id))
	}

	var m struct {
		AddLabelsToLabelable struct {
			ClientMutationID githubv4.String
		} `graphql:"addLabelsToLabelable(input: $input)"`
	}
	input := githubv4.AddLabelsToLabelableInput{
		LabelableID: githubv4.ID(labelableID),
		LabelIDs:    ids,
	}
	if err := c.mutate(ctx, &m, input); err != nil {
		return fmt.Errorf("failed to label %s: %w", labelableID, err)
	}
	return nil
}
