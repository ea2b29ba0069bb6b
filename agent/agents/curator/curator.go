package curator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	contractx "github.com/eduverse/agent-core/agent/contract"
	nodex "github.com/eduverse/agent-core/agent/nodes"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

const defaultMaxPerType = 3

var defaultResourceTypes = []string{"video", "article", "practice", "book", "course"}

type Config struct {
	ContextTimeout  time.Duration
	ContextRetries  int
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration
	GenerateRetries int
	PersistTimeout  time.Duration
	Policy          *pipelinex.Policy
}

func (c *Config) applyDefaults() {
	if c.ContextTimeout <= 0 {
		c.ContextTimeout = 10 * time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 8 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 60 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.Policy == nil {
		c.Policy = pipelinex.DefaultPolicy()
	}
}

// Curator fans out one search per resource type, then ranks the merged
// candidates for the learner.
type Curator struct {
	search        contractx.Search
	generator     contractx.Generator
	notifier      contractx.Notifier
	pipeline      *pipelinex.Pipeline
	searchTimeout time.Duration
}

func New(
	memory contractx.MemoryStore,
	generator contractx.Generator,
	search contractx.Search,
	store contractx.PersistenceStore,
	notifier contractx.Notifier,
	cfg Config,
) (*Curator, error) {
	if memory == nil {
		return nil, errors.New("memory store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if search == nil {
		return nil, errors.New("search adapter is required")
	}
	if store == nil {
		return nil, errors.New("persistence store is required")
	}
	cfg.applyDefaults()

	c := &Curator{
		search:        search,
		generator:     generator,
		notifier:      notifier,
		searchTimeout: cfg.SearchTimeout,
	}

	stages := []pipelinex.Stage{
		{
			Name:       pipelinex.StageAnalyze,
			Capability: "analysis",
			Timeout:    2 * time.Second,
			Exec: func(_ context.Context, run *pipelinex.Run) (any, error) {
				return analyze(run.Request.(contractx.CuratorRequest)), nil
			},
		},
		nodex.GatherContext(memory, cfg.ContextTimeout, cfg.ContextRetries),
		{
			Name:       pipelinex.StageGenerate,
			Capability: "generation",
			Timeout:    cfg.GenerateTimeout,
			Retries:    cfg.GenerateRetries,
			Exec:       c.generate,
		},
		nodex.Persist(store, memory, buildRecord, cfg.PersistTimeout),
	}

	pl, err := pipelinex.New(context.Background(), "curator.handle", cfg.Policy, stages)
	if err != nil {
		return nil, err
	}
	c.pipeline = pl
	return c, nil
}

// Handle runs one curation request end to end.
func (c *Curator) Handle(ctx context.Context, req contractx.CuratorRequest) (contractx.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return contractx.AgentResponse{}, err
	}

	run := pipelinex.NewRun(req.LearnerID, req)
	res, err := c.pipeline.Execute(ctx, run)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	nodex.NotifyDegraded(c.notifier, contractx.AgentCurator, res)
	return nodex.BuildResponse(res, pipelinex.StageGenerate)
}

type searchPlan struct {
	Topic         string   `json:"topic"`
	Subject       string   `json:"subject"`
	ResourceTypes []string `json:"resource_types"`
	MaxPerType    int      `json:"max_per_type"`
}

func analyze(req contractx.CuratorRequest) searchPlan {
	p := searchPlan{
		Topic:      strings.TrimSpace(req.Topic),
		Subject:    strings.TrimSpace(req.Subject),
		MaxPerType: req.MaxPerType,
	}
	for _, rt := range req.ResourceTypes {
		if trimmed := strings.TrimSpace(rt); trimmed != "" {
			p.ResourceTypes = append(p.ResourceTypes, strings.ToLower(trimmed))
		}
	}
	if len(p.ResourceTypes) == 0 {
		p.ResourceTypes = defaultResourceTypes
	}
	if p.MaxPerType <= 0 {
		p.MaxPerType = defaultMaxPerType
	}
	return p
}

type searchHit struct {
	resourceType string
	candidates   []contractx.Candidate
	err          error
}

func (c *Curator) generate(ctx context.Context, run *pipelinex.Run) (any, error) {
	plan := planOf(run)

	query := plan.Topic
	if plan.Subject != "" {
		query = plan.Subject + " " + plan.Topic
	}

	candidates, failed, searchErr := c.fanOut(ctx, query, plan)
	if len(candidates) == 0 {
		if searchErr != nil {
			return nil, searchErr
		}
		return nil, fmt.Errorf("%w: no resources found for %q", contractx.ErrAdapterRejected, query)
	}

	list := contractx.CuratedList{
		Topic:       plan.Topic,
		SearchQuery: query,
		TotalFound:  len(candidates),
	}
	list.Resources = c.rank(ctx, run, plan, candidates)

	if len(failed) > 0 {
		return list, fmt.Errorf("%w: %d of %d resource searches failed (%s): %v",
			contractx.ErrPartialResults, len(failed), len(plan.ResourceTypes),
			strings.Join(failed, ", "), searchErr)
	}
	return list, nil
}

// fanOut runs one search per resource type concurrently. Each sub-query has
// its own timeout so one slow provider call cannot consume the whole stage
// budget.
func (c *Curator) fanOut(ctx context.Context, query string, plan searchPlan) ([]contractx.Candidate, []string, error) {
	hits := make(chan searchHit, len(plan.ResourceTypes))

	var wg sync.WaitGroup
	for _, rt := range plan.ResourceTypes {
		wg.Add(1)
		go func(resourceType string) {
			defer wg.Done()
			queryCtx, cancel := context.WithTimeout(ctx, c.searchTimeout)
			defer cancel()
			found, err := c.search.Query(queryCtx, query, resourceType, plan.MaxPerType)
			hits <- searchHit{resourceType: resourceType, candidates: found, err: err}
		}(rt)
	}
	wg.Wait()
	close(hits)

	byType := make(map[string][]contractx.Candidate, len(plan.ResourceTypes))
	var (
		failed  []string
		lastErr error
	)
	for hit := range hits {
		if hit.err != nil {
			failed = append(failed, hit.resourceType)
			lastErr = hit.err
			continue
		}
		byType[hit.resourceType] = hit.candidates
	}
	sort.Strings(failed)

	// Merge in declaration order so the result is stable across runs.
	var candidates []contractx.Candidate
	for _, rt := range plan.ResourceTypes {
		candidates = append(candidates, byType[rt]...)
	}
	return candidates, failed, lastErr
}

// rank asks the model to order and annotate the candidates. A ranking failure
// falls back to score order rather than losing the search results.
func (c *Curator) rank(ctx context.Context, run *pipelinex.Run, plan searchPlan, candidates []contractx.Candidate) []contractx.RankedResource {
	payload := map[string]any{
		"topic":           plan.Topic,
		"subject":         plan.Subject,
		"learner_context": nodex.LearnerContextOf(run),
		"candidates":      candidates,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return scoreOrdered(candidates)
	}

	raw, err := c.generator.Complete(ctx, string(input), contractx.GenerateParams{Agent: contractx.AgentCurator})
	if err != nil {
		return scoreOrdered(candidates)
	}

	var parsed struct {
		Resources []contractx.RankedResource `json:"resources"`
	}
	if err := nodex.DecodeModelJSON(raw, &parsed); err != nil || len(parsed.Resources) == 0 {
		return scoreOrdered(candidates)
	}
	return parsed.Resources
}

func scoreOrdered(candidates []contractx.Candidate) []contractx.RankedResource {
	sorted := append([]contractx.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	resources := make([]contractx.RankedResource, 0, len(sorted))
	for _, cand := range sorted {
		resources = append(resources, contractx.RankedResource{
			Title:        cand.Title,
			URL:          cand.URL,
			ResourceType: cand.ResourceType,
			Description:  cand.Snippet,
			Rating:       cand.Score,
			Source:       cand.Source,
		})
	}
	return resources
}

func buildRecord(run *pipelinex.Run) (*contractx.Record, *contractx.MemoryDelta, error) {
	v, ok := run.Value(pipelinex.StageGenerate)
	if !ok {
		return nil, nil, errors.New("generate output missing")
	}
	list, ok := v.(contractx.CuratedList)
	if !ok {
		return nil, nil, errors.New("generate output has unexpected type")
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return nil, nil, err
	}

	rec := &contractx.Record{
		LearnerID: run.LearnerID,
		Agent:     contractx.AgentCurator,
		Kind:      "curated_resources",
		Payload:   payload,
	}
	delta := &contractx.MemoryDelta{
		Agent:       contractx.AgentCurator,
		Topic:       list.Topic,
		UserInput:   list.SearchQuery,
		AgentOutput: fmt.Sprintf("curated %d resources", len(list.Resources)),
	}
	return rec, delta, nil
}

func planOf(run *pipelinex.Run) searchPlan {
	if v, ok := run.Value(pipelinex.StageAnalyze); ok {
		if p, ok := v.(searchPlan); ok {
			return p
		}
	}
	return searchPlan{ResourceTypes: defaultResourceTypes, MaxPerType: defaultMaxPerType}
}
