package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"

	"github.com/andywolf/statusnotify/internal/issue"
)

// issueFields is the issue selection shared by both sources.
type issueFields struct {
	ID         githubv4.ID
	Number     githubv4.Int
	Title      githubv4.String
	URL        githubv4.String
	State      githubv4.IssueState
	Repository struct {
		NameWithOwner githubv4.String
	}
	Labels struct {
		Nodes []struct {
			Name githubv4.String
		}
	} `graphql:"labels(first: 50)"`
	Assignees struct {
		Nodes []struct {
			Login githubv4.String
			Name  githubv4.String
			Email githubv4.String
		}
	} `graphql:"assignees(first: 100)"`
}

func (f issueFields) toIssue() issue.Issue {
	iss := issue.Issue{
		ID:         nodeID(f.ID),
		Number:     int(f.Number),
		Title:      string(f.Title),
		URL:        string(f.URL),
		State:      issue.State(f.State),
		Repository: string(f.Repository.NameWithOwner),
	}
	for _, l := range f.Labels.Nodes {
		iss.Labels = append(iss.Labels, string(l.Name))
	}
	for _, a := range f.Assignees.Nodes {
		iss.Assignees = append(iss.Assignees, issue.Assignee{
			Login: string(a.Login),
			Name:  string(a.Name),
			Email: string(a.Email),
		})
	}
	return iss
}

// statusValue selects the single-select option name of a field value. It
// stays empty when the field is unset or is not a single-select field.
type statusValue struct {
	SingleSelect struct {
		Name githubv4.String
	} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
}

func (v statusValue) name() string {
	return string(v.SingleSelect.Name)
}

type repoIssueNode struct {
	issueFields
	ProjectItems struct {
		Nodes []struct {
			Project struct {
				Number githubv4.Int
			}
			FieldValueByName statusValue `graphql:"fieldValueByName(name: $statusField)"`
		}
	} `graphql:"projectItems(first: 10)"`
}

// RepositoryIssues lists the open issues of one repository and reads each
// issue's status from its item on the configured project.
type RepositoryIssues struct {
	client        *Client
	owner         string
	name          string
	projectNumber int
	statusField   string
}

// NewRepositoryIssues creates a source for repository ("owner/name").
func NewRepositoryIssues(client *Client, repository string, projectNumber int, statusField string) (*RepositoryIssues, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("repository %q must have the form owner/name", repository)
	}
	return &RepositoryIssues{
		client:        client,
		owner:         owner,
		name:          name,
		projectNumber: projectNumber,
		statusField:   statusField,
	}, nil
}

func (s *RepositoryIssues) page(ctx context.Context, cursor *githubv4.String) ([]repoIssueNode, pageInfo, error) {
	var q struct {
		Repository struct {
			Issues struct {
				Nodes    []repoIssueNode
				PageInfo pageInfo
			} `graphql:"issues(first: 100, after: $cursor, states: OPEN)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner":       githubv4.String(s.owner),
		"name":        githubv4.String(s.name),
		"statusField": githubv4.String(s.statusField),
		"cursor":      cursor,
	}
	if err := s.client.query(ctx, &q, vars); err != nil {
		return nil, pageInfo{}, err
	}
	return q.Repository.Issues.Nodes, q.Repository.Issues.PageInfo, nil
}

// Fetch returns an observation for every open issue that is on the project.
// Issues not on the project are skipped. On error the observations gathered
// before the failing page are returned with it.
func (s *RepositoryIssues) Fetch(ctx context.Context) ([]issue.Observation, error) {
	nodes, err := drain(Pages(ctx, s.page))

	var out []issue.Observation
	for _, n := range nodes {
		obs, ok := s.observe(n)
		if !ok {
			s.client.logger.Debugf("issue %s#%d is not on project %d, skipping", s.owner+"/"+s.name, int(n.Number), s.projectNumber)
			continue
		}
		out = append(out, obs)
	}

	if err != nil {
		return out, fmt.Errorf("failed to list issues of %s/%s: %w", s.owner, s.name, err)
	}
	return out, nil
}

func (s *RepositoryIssues) observe(n repoIssueNode) (issue.Observation, bool) {
	for _, item := range n.ProjectItems.Nodes {
		if int(item.Project.Number) != s.projectNumber {
			continue
		}
		return issue.Observation{
			Issue:  n.toIssue(),
			Status: item.FieldValueByName.name(),
		}, true
	}
	return issue.Observation{}, false
}
