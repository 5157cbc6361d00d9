package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// xgbDocument mirrors the parts of the XGBoost JSON model format that are
// needed for inference with a gbtree booster.
type xgbDocument struct {
	Learner struct {
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
			NumClass   string `json:"num_class"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTree `json:"trees"`
				TreeInfo []int     `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flags     `json:"default_left"`
}

// flags accepts both the integer and the boolean encodings XGBoost has used
// for default_left.
type flags []bool

func (f *flags) UnmarshalJSON(b []byte) error {
	var bools []bool
	if err := json.Unmarshal(b, &bools); err == nil {
		*f = bools
		return nil
	}
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return fmt.Errorf("default_left: %w", err)
	}
	out := make([]bool, len(ints))
	for i, v := range ints {
		out[i] = v != 0
	}
	*f = out
	return nil
}

var (
	identityObjectives = map[string]bool{
		"reg:squarederror":     true,
		"reg:linear":           true,
		"reg:absoluteerror":    true,
		"reg:pseudohubererror": true,
		"binary:logitraw":      true,
	}
	logisticObjectives = map[string]bool{
		"binary:logistic": true,
		"reg:logistic":    true,
	}
)

type regressionTree struct {
	left, right []int32
	split       []int32
	cond        []float32
	defaultLeft []bool
}

// treeEnsemble evaluates a gbtree model the way XGBoost does on CPU:
// float32 split comparisons and float32 accumulation onto the base margin.
type treeEnsemble struct {
	trees       []regressionTree
	numFeatures int
	baseMargin  float32
	logistic    bool
}

func decodeTreeEnsemble(data []byte) (*treeEnsemble, error) {
	var doc xgbDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse xgboost json: %w", err)
	}

	learner := doc.Learner
	if name := learner.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}

	numFeatures, err := strconv.Atoi(learner.LearnerModelParam.NumFeature)
	if err != nil || numFeatures <= 0 {
		return nil, fmt.Errorf("invalid num_feature %q", learner.LearnerModelParam.NumFeature)
	}
	if n := learner.LearnerModelParam.NumClass; n != "" && n != "0" && n != "1" {
		return nil, fmt.Errorf("multi-class models are not supported (num_class=%s)", n)
	}
	if n := learner.LearnerModelParam.NumTarget; n != "" && n != "1" {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%s)", n)
	}

	baseScore, err := parseBaseScore(learner.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	m := &treeEnsemble{numFeatures: numFeatures}
	objective := learner.Objective.Name
	switch {
	case identityObjectives[objective]:
		m.baseMargin = baseScore
	case logisticObjectives[objective]:
		if baseScore <= 0 || baseScore >= 1 {
			return nil, fmt.Errorf("base_score %v outside (0,1) for %s", baseScore, objective)
		}
		m.baseMargin = float32(-math.Log(1/float64(baseScore) - 1))
		m.logistic = true
	default:
		return nil, fmt.Errorf("unsupported objective %q", objective)
	}

	for _, group := range learner.GradientBooster.Model.TreeInfo {
		if group != 0 {
			return nil, fmt.Errorf("tree_info references output group %d", group)
		}
	}

	trees := learner.GradientBooster.Model.Trees
	if len(trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	m.trees = make([]regressionTree, len(trees))
	for i := range trees {
		t, err := buildTree(trees[i], numFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees[i] = t
	}
	return m, nil
}

func parseBaseScore(s string) (float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return float32(v), nil
}

func buildTree(t xgbTree, numFeatures int) (regressionTree, error) {
	n := len(t.LeftChildren)
	if n == 0 {
		return regressionTree{}, fmt.Errorf("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n {
		return regressionTree{}, fmt.Errorf("node arrays disagree in length")
	}
	if len(t.DefaultLeft) != n {
		return regressionTree{}, fmt.Errorf("default_left has %d entries for %d nodes", len(t.DefaultLeft), n)
	}

	rt := regressionTree{
		left:        make([]int32, n),
		right:       make([]int32, n),
		split:       make([]int32, n),
		cond:        make([]float32, n),
		defaultLeft: []bool(t.DefaultLeft),
	}
	for i := 0; i < n; i++ {
		l, r := t.LeftChildren[i], t.RightChildren[i]
		rt.cond[i] = float32(t.SplitConditions[i])
		rt.left[i], rt.right[i] = int32(l), int32(r)
		if l == -1 && r == -1 {
			continue
		}
		// Children always follow their parent, which rules out cycles.
		if l <= i || l >= n || r <= i || r >= n {
			return regressionTree{}, fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		idx := t.SplitIndices[i]
		if idx < 0 || idx >= numFeatures {
			return regressionTree{}, fmt.Errorf("node %d splits on feature %d of %d", i, idx, numFeatures)
		}
		rt.split[i] = int32(idx)
	}
	return rt, nil
}

func (t *regressionTree) leaf(x []float64) float32 {
	n := int32(0)
	for t.left[n] != -1 {
		v := x[t.split[n]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[n] {
				n = t.left[n]
			} else {
				n = t.right[n]
			}
		case float32(v) < t.cond[n]:
			n = t.left[n]
		default:
			n = t.right[n]
		}
	}
	return t.cond[n]
}

func (m *treeEnsemble) NumFeatures() int { return m.numFeatures }

func (m *treeEnsemble) Predict(x []float64) float64 {
	margin := m.baseMargin
	for i := range m.trees {
		margin += m.trees[i].leaf(x)
	}
	if m.logistic {
		return float64(float32(sigmoid(float64(margin))))
	}
	return float64(margin)
}
