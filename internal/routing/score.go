package routing

// TaskType is the kind of work a routed LLM call performs. The router uses
// it to weigh cost, speed, and reasoning/creativity differently per call.
type TaskType string

const (
	TaskChat            TaskType = "chat"
	TaskCustomerSupport TaskType = "support"
	TaskSummarize       TaskType = "summarize"
	TaskExtract         TaskType = "extract"
	TaskClassify        TaskType = "classify"
	TaskSentiment       TaskType = "sentiment"
	TaskWrite           TaskType = "write"
	TaskEmail           TaskType = "email"
	TaskCode            TaskType = "code"
	TaskTranslate       TaskType = "translate"
	TaskAnalyze         TaskType = "analyze"
	TaskPlan            TaskType = "plan"
	TaskDecide          TaskType = "decide"
	TaskResearch        TaskType = "research"
	TaskQuick           TaskType = "quick"
	TaskFormat          TaskType = "format"
)

// requirement is the 1-5 rating a task type needs along each axis.
type requirement struct {
	speed      int
	reasoning  int
	creativity int
	minCost    int
}

// taskRequirements maps each TaskType to what it needs from a model. Values
// mirror how a chat/support task prizes speed and low cost, a reasoning
// task (analyze/plan/research) prizes top reasoning over speed, and a
// generation task (write/email) leans on creativity.
var taskRequirements = map[TaskType]requirement{
	TaskChat:            {speed: 4, reasoning: 3, creativity: 3, minCost: 4},
	TaskCustomerSupport: {speed: 4, reasoning: 3, creativity: 2, minCost: 4},

	TaskSummarize: {speed: 4, reasoning: 4, creativity: 2, minCost: 4},
	TaskExtract:   {speed: 4, reasoning: 4, creativity: 1, minCost: 4},
	TaskClassify:  {speed: 5, reasoning: 3, creativity: 1, minCost: 5},
	TaskSentiment: {speed: 5, reasoning: 3, creativity: 1, minCost: 5},

	TaskWrite:     {speed: 3, reasoning: 4, creativity: 5, minCost: 3},
	TaskEmail:     {speed: 4, reasoning: 3, creativity: 3, minCost: 4},
	TaskCode:      {speed: 3, reasoning: 5, creativity: 4, minCost: 3},
	TaskTranslate: {speed: 4, reasoning: 4, creativity: 2, minCost: 4},

	TaskAnalyze:  {speed: 2, reasoning: 5, creativity: 4, minCost: 2},
	TaskPlan:     {speed: 2, reasoning: 5, creativity: 4, minCost: 2},
	TaskDecide:   {speed: 3, reasoning: 5, creativity: 3, minCost: 3},
	TaskResearch: {speed: 2, reasoning: 5, creativity: 3, minCost: 2},

	TaskQuick:  {speed: 5, reasoning: 2, creativity: 2, minCost: 5},
	TaskFormat: {speed: 5, reasoning: 2, creativity: 1, minCost: 5},
}

func requirementFor(t TaskType) requirement {
	if r, ok := taskRequirements[t]; ok {
		return r
	}
	return taskRequirements[TaskChat]
}

// reasoningWeighted is the set of tasks where raw reasoning capability
// dominates the quality term over creativity.
var reasoningWeighted = map[TaskType]bool{
	TaskCode: true, TaskAnalyze: true, TaskPlan: true, TaskDecide: true,
}

// creativityWeighted is the set of tasks where creativity dominates.
var creativityWeighted = map[TaskType]bool{
	TaskWrite: true, TaskEmail: true,
}

// Weights controls how cost, speed, and quality trade off against each
// other. The three fields need not sum to 1; score normalizes them.
type Weights struct {
	Cost    float64
	Speed   float64
	Quality float64
}

// DefaultWeights matches the balance struck for general-purpose routing:
// quality edges out cost and speed, which are weighted equally.
func DefaultWeights() Weights {
	return Weights{Cost: 0.3, Speed: 0.3, Quality: 0.4}
}

// ScoreOptions adjusts the default weights for one routing decision.
type ScoreOptions struct {
	PreferSpeed   bool
	PreferQuality bool
}

// score rates how well m fits a task, all other things (tier eligibility,
// provider health) already filtered out by the caller. Higher is better.
func score(m *Model, task TaskType, weights Weights, opts ScoreOptions) float64 {
	req := requirementFor(task)

	costW, speedW, qualityW := weights.Cost, weights.Speed, weights.Quality
	if opts.PreferSpeed {
		speedW *= 1.5
	}
	if opts.PreferQuality {
		qualityW *= 1.5
	}

	total := costW + speedW + qualityW
	if total == 0 {
		total = 1
	}
	costW /= total
	speedW /= total
	qualityW /= total

	var s float64

	if m.Cost >= req.minCost {
		s += costW * float64(m.Cost)
	} else {
		s += costW * float64(m.Cost) * 0.5
	}

	if m.Speed >= req.speed {
		s += speedW * float64(m.Speed)
	} else {
		s += speedW * float64(m.Speed) * 0.5
	}

	reasoningReq := maxInt(req.reasoning, 1)
	creativityReq := maxInt(req.creativity, 1)
	reasoningScore := minFloat(float64(m.Reasoning)/float64(reasoningReq), 1.5)
	creativityScore := minFloat(float64(m.Creativity)/float64(creativityReq), 1.5)

	var quality float64
	switch {
	case reasoningWeighted[task]:
		quality = reasoningScore*0.7 + creativityScore*0.3
	case creativityWeighted[task]:
		quality = reasoningScore*0.3 + creativityScore*0.7
	default:
		quality = reasoningScore*0.5 + creativityScore*0.5
	}

	s += qualityW * quality * 5
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
