package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/andywolf/statusnotify/internal/issue"
)

// OwnerType is the kind of account that owns a project.
type OwnerType string

const (
	OwnerOrganization OwnerType = "organization"
	OwnerUser         OwnerType = "user"
)

// ParseOwnerType validates an owner type setting.
func ParseOwnerType(s string) (OwnerType, error) {
	switch OwnerType(s) {
	case OwnerOrganization, OwnerUser:
		return OwnerType(s), nil
	default:
		return "", fmt.Errorf("unsupported owner type %q (want organization or user)", s)
	}
}

type projectItemNode struct {
	ID               githubv4.ID
	FieldValueByName statusValue `graphql:"fieldValueByName(name: $statusField)"`
	Content          struct {
		Typename githubv4.String `graphql:"__typename"`
		Issue    issueFields     `graphql:"... on Issue"`
	}
}

type projectItems struct {
	ProjectV2 struct {
		Items struct {
			Nodes    []projectItemNode
			PageInfo pageInfo
		} `graphql:"items(first: 100, after: $cursor)"`
	} `graphql:"projectV2(number: $projectNumber)"`
}

// ProjectItems lists the items of a user or organization project and reads
// the status from each item.
type ProjectItems struct {
	client        *Client
	ownerType     OwnerType
	owner         string
	projectNumber int
	statusField   string
}

// NewProjectItems creates a source for project number projectNumber owned by
// the given account.
func NewProjectItems(client *Client, ownerType OwnerType, owner string, projectNumber int, statusField string) (*ProjectItems, error) {
	if _, err := ParseOwnerType(string(ownerType)); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("project owner cannot be empty")
	}
	return &ProjectItems{
		client:        client,
		ownerType:     ownerType,
		owner:         owner,
		projectNumber: projectNumber,
		statusField:   statusField,
	}, nil
}

func (s *ProjectItems) page(ctx context.Context, cursor *githubv4.String) ([]projectItemNode, pageInfo, error) {
	vars := map[string]interface{}{
		"owner":         githubv4.String(s.owner),
		"projectNumber": githubv4.Int(s.projectNumber),
		"statusField":   githubv4.String(s.statusField),
		"cursor":        cursor,
	}

	var items projectItems
	switch s.ownerType {
	case OwnerUser:
		var q struct {
			User projectItems `graphql:"user(login: $owner)"`
		}
		if err := s.client.query(ctx, &q, vars); err != nil {
			return nil, pageInfo{}, err
		}
		items = q.User
	default:
		var q struct {
			Organization projectItems `graphql:"organization(login: $owner)"`
		}
		if err := s.client.query(ctx, &q, vars); err != nil {
			return nil, pageInfo{}, err
		}
		items = q.Organization
	}
	return items.ProjectV2.Items.Nodes, items.ProjectV2.Items.PageInfo, nil
}

// Fetch returns an observation for every issue on the project. Draft items
// and pull requests are skipped with a warning. On error the observations
// gathered before the failing page are returned with it.
func (s *ProjectItems) Fetch(ctx context.Context) ([]issue.Observation, error) {
	nodes, err := drain(Pages(ctx, s.page))

	var out []issue.Observation
	for _, n := range nodes {
		if nodeID(n.Content.Issue.ID) == "" {
			kind := string(n.Content.Typename)
			if kind == "" {
				kind = "no content"
			}
			s.client.logger.Warningf("project item %s is not an issue (%s), skipping", nodeID(n.ID), kind)
			continue
		}
		out = append(out, issue.Observation{
			Issue:  n.Content.Issue.toIssue(),
			Status: n.FieldValueByName.name(),
		})
	}

	if err != nil {
		return out, fmt.Errorf("failed to list items of %s %s project %d: %w", s.ownerType, s.owner, s.projectNumber, err)
	}
	return out, nil
}
