package swarm

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// tagRule maps a keyword pattern to the tags it contributes. Patterns are
// intentionally simple substring/regex matches across a handful of
// languages rather than a full NLP pipeline.
type tagRule struct {
	pattern *regexp.Regexp
	tags    []string
}

var tagRules = []tagRule{
	{regexp.MustCompile(`(?i)\b(data|dataset|leads|crm|scrape|spreadsheet|datos)\b`), []string{"data"}},
	{regexp.MustCompile(`(?i)\b(report|summary|write[- ]?up|informe|rapport)\b`), []string{"report"}},
	{regexp.MustCompile(`(?i)\b(bug|issue|crash|erreur|error|fehler)\b`), []string{"bug"}},
	{regexp.MustCompile(`(?i)\b(code|implement|refactor|código|impl)\b`), []string{"code"}},
	{regexp.MustCompile(`(?i)\b(review|revisar|überprüfen|audit)\b`), []string{"review"}},
	{regexp.MustCompile(`(?i)\b(deploy|release|ship|despliegue)\b`), []string{"deploy"}},
	{regexp.MustCompile(`(?i)\b(design|mockup|wireframe|diseño)\b`), []string{"design"}},
	{regexp.MustCompile(`(?i)\b(test|qa|pruebas|verify)\b`), []string{"test"}},
}

// Router turns free-form intents into TASK_POSTED events.
type Router struct {
	bus    *bus.Bus
	logger zerolog.Logger
}

// NewRouter creates an IntentRouter publishing through b.
func NewRouter(b *bus.Bus) *Router {
	return &Router{bus: b, logger: log.WithComponent("router")}
}

// DeriveTags runs the fixed keyword-rule table over intent and returns the
// union of matched tags, in rule order, de-duplicated.
func DeriveTags(intent string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, rule := range tagRules {
		if rule.pattern.MatchString(intent) {
			for _, t := range rule.tags {
				if _, ok := seen[t]; !ok {
					seen[t] = struct{}{}
					tags = append(tags, t)
				}
			}
		}
	}
	return tags
}

// idempotencyKey hashes the intent together with the current 5-minute
// bucket so the same intent repeated within the window collapses to one
// event.
func idempotencyKey(intent string) string {
	bucket := time.Now().Unix() / int64((5 * time.Minute).Seconds())
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(intent))))
	_, _ = h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return "intent:" + strconv.FormatUint(h.Sum64(), 16)
}

// RouteOptions carries the caller-supplied fields from the POST /intents
// surface.
type RouteOptions struct {
	Budget    *types.Budget
	RiskLevel types.RiskLevel
	Tags      []string
}

// Route parses intent and publishes a TASK_POSTED event carrying the
// derived (and any caller-supplied) tags.
func (r *Router) Route(intent string, opts RouteOptions) (*types.Event, error) {
	tags := DeriveTags(intent)
	for _, t := range opts.Tags {
		tags = append(tags, t)
	}

	risk := opts.RiskLevel
	if risk == "" {
		risk = types.RiskLow
	}

	event := &types.Event{
		Topic:          types.TopicTaskPosted,
		Intent:         intent,
		RequiredTags:   dedupe(tags),
		RiskLevel:      risk,
		Budget:         opts.Budget,
		IdempotencyKey: idempotencyKey(intent),
		Payload:        map[string]any{},
	}

	published, err := r.bus.Publish(event)
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("event_id", published.EventID).Strs("tags", published.RequiredTags).Msg("routed intent")
	return published, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
