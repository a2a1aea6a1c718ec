package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aescanero/carecoord/pkg/adapters/metrics/noop"
	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestValidator(strict bool) *Validator {
	return NewValidator(strict, noop.New(), zap.NewNop())
}

func TestValidator_AcceptsDiagnosisGraph(t *testing.T) {
	v := newTestValidator(false)

	assert.True(t, v.Validate(mustDoc(t, diagnosisGraph)))
	assert.True(t, v.Validate(mustDoc(t, journeyGraph)))
}

func TestValidator_RejectsMissingTopLevelField(t *testing.T) {
	v := newTestValidator(false)

	for _, field := range []string{"agents", "workflow", "actions", "data_flow"} {
		t.Run(field, func(t *testing.T) {
			doc := mustDoc(t, diagnosisGraph)
			delete(doc, field)

			assert.False(t, v.Validate(doc))

			err := v.Check(doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGraph))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestValidator_RejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name  string
		graph string
		field string
	}{
		{
			name:  "action without params",
			graph: `{"agents":[],"workflow":"w","actions":[{"agent":"a","action":"x","params":{}},{"agent":"b","action":"y"}],"data_flow":[]}`,
			field: "actions[1].params",
		},
		{
			name:  "action without agent",
			graph: `{"agents":[],"workflow":"w","actions":[{"action":"x","params":{}}],"data_flow":[]}`,
			field: "actions[0].agent",
		},
		{
			name:  "edge without data",
			graph: `{"agents":[],"workflow":"w","actions":[],"data_flow":[{"from":"a","to":"b"}]}`,
			field: "data_flow[0].data",
		},
		{
			name:  "actions not a list",
			graph: `{"agents":[],"workflow":"w","actions":{"agent":"a"},"data_flow":[]}`,
			field: "actions",
		},
		{
			name:  "data_flow null",
			graph: `{"agents":[],"workflow":"w","actions":[],"data_flow":null}`,
			field: "data_flow",
		},
		{
			name:  "semantic context without intent",
			graph: `{"agents":[],"workflow":"w","actions":[],"data_flow":[],"semantic_context":{"identified_concepts":[],"confidence":0.4}}`,
			field: "semantic_context.intent",
		},
		{
			name:  "semantic context with textual confidence",
			graph: `{"agents":[],"workflow":"w","actions":[],"data_flow":[],"semantic_context":{"intent":"diagnosis","identified_concepts":[],"confidence":"high"}}`,
			field: "semantic_context",
		},
		{
			name:  "semantic context with scalar concepts",
			graph: `{"agents":[],"workflow":"w","actions":[],"data_flow":[],"semantic_context":{"intent":"diagnosis","identified_concepts":"fever","confidence":0.4}}`,
			field: "semantic_context",
		},
	}

	v := newTestValidator(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Check(mustDoc(t, tt.graph))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, errors.Is(err, ErrInvalidGraph))
		})
	}
}

func TestValidator_NullSemanticContextIsIgnored(t *testing.T) {
	doc := mustDoc(t, diagnosisGraph)
	doc["semantic_context"] = nil

	assert.True(t, newTestValidator(false).Validate(doc))
}

func TestValidator_StrictDataFlow(t *testing.T) {
	doc := mustDoc(t, `{
		"agents": ["symptom_analyzer"],
		"workflow": "medical_diagnosis",
		"actions": [{"agent": "symptom_analyzer", "action": "analyze_symptoms", "params": {}}],
		"data_flow": [{"from": "symptom_analyzer", "to": "radiology", "data": "images"}]
	}`)

	assert.True(t, newTestValidator(false).Validate(doc))

	err := newTestValidator(true).Check(doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEdgeAgent))
	assert.True(t, errors.Is(err, ErrInvalidGraph))
	assert.Contains(t, err.Error(), `"radiology"`)
}

func TestValidator_ExtractPlan(t *testing.T) {
	plan, err := newTestValidator(false).ExtractPlan(mustDoc(t, diagnosisGraph))
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, "symptom_analyzer_analyze_symptoms", plan[0].TaskID())
	assert.Empty(t, plan[0].Inputs)
	assert.Equal(t, []string{"structured_symptoms"}, plan[0].Outputs)
	assert.Equal(t, domain.PriorityMedium, plan[0].Priority)
	assert.Equal(t, "fever and cough", plan[0].Params["symptoms_text"])
	assert.NotContains(t, plan[0].Params, "semantic_understanding")

	assert.Equal(t, []string{"structured_symptoms"}, plan[1].Inputs)
	assert.Empty(t, plan[1].Outputs)
}

func TestValidator_ExtractPlanRejectsInvalidGraph(t *testing.T) {
	doc := mustDoc(t, diagnosisGraph)
	delete(doc, "actions")

	plan, err := newTestValidator(false).ExtractPlan(doc)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, ErrInvalidGraph))
}

func TestValidator_PriorityFromConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       domain.Priority
	}{
		{0.95, domain.PriorityHigh},
		{0.81, domain.PriorityHigh},
		{0.8, domain.PriorityMedium},
		{0.5, domain.PriorityMedium},
		{0.49, domain.PriorityLow},
		{0, domain.PriorityLow},
	}

	v := newTestValidator(false)
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			doc := mustDoc(t, diagnosisGraph)
			doc["semantic_context"] = map[string]interface{}{
				"intent":              "diagnosis",
				"identified_concepts": []interface{}{"fever"},
				"confidence":          tt.confidence,
				"severity_indicators": []interface{}{"persistent"},
			}

			plan, err := v.ExtractPlan(doc)
			require.NoError(t, err)

			for _, entry := range plan {
				assert.Equal(t, tt.want, entry.Priority)

				understanding, ok := entry.Params["semantic_understanding"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "diagnosis", understanding["intent"])
				assert.Equal(t, []string{"fever"}, understanding["concepts"])
				assert.Equal(t, tt.confidence, understanding["confidence"])
				assert.Equal(t, []string{"persistent"}, understanding["severity_indicators"])
				assert.NotContains(t, understanding, "temporal_context")
			}
		})
	}
}

func TestValidator_ExtractPlanDoesNotMutateGraph(t *testing.T) {
	doc := mustDoc(t, diagnosisGraph)
	doc["semantic_context"] = map[string]interface{}{
		"intent":              "diagnosis",
		"identified_concepts": []interface{}{},
		"confidence":          0.6,
	}

	_, err := newTestValidator(false).ExtractPlan(doc)
	require.NoError(t, err)

	params := doc["actions"].([]interface{})[0].(map[string]interface{})["params"].(map[string]interface{})
	assert.NotContains(t, params, "semantic_understanding")
}

func TestValidator_PropertyExtractPlanIsRepeatable(t *testing.T) {
	v := newTestValidator(false)

	rapid.Check(t, func(rt *rapid.T) {
		doc := mustDoc(rt, diagnosisGraph)
		doc["semantic_context"] = map[string]interface{}{
			"intent":              "diagnosis",
			"identified_concepts": []interface{}{"fever"},
			"confidence":          rapid.Float64Range(0, 1).Draw(rt, "confidence"),
		}

		first, err := v.ExtractPlan(doc)
		if err != nil {
			rt.Fatalf("first extraction failed: %v", err)
		}
		second, err := v.ExtractPlan(doc)
		if err != nil {
			rt.Fatalf("second extraction failed: %v", err)
		}
		if !assert.ObjectsAreEqual(first, second) {
			rt.Fatalf("plans differ:\n%v\n%v", first, second)
		}

		for i := range first {
			first[i].Params["marker"] = i
			first[i].Params["semantic_understanding"].(map[string]interface{})["marker"] = i
		}
		for i, entry := range second {
			if _, ok := entry.Params["marker"]; ok {
				rt.Fatalf("entry %d shares params with the first plan", i)
			}
			if _, ok := entry.Params["semantic_understanding"].(map[string]interface{})["marker"]; ok {
				rt.Fatalf("entry %d shares semantic_understanding with the first plan", i)
			}
		}
	})
}

func TestValidator_ExtractPlanTwiceWithSemanticContext(t *testing.T) {
	v := newTestValidator(false)
	doc := mustDoc(t, diagnosisGraph)
	doc["semantic_context"] = map[string]interface{}{
		"intent":              "diagnosis",
		"identified_concepts": []interface{}{"fever"},
		"confidence":          0.9,
	}

	first, err := v.ExtractPlan(doc)
	require.NoError(t, err)
	second, err := v.ExtractPlan(doc)
	require.NoError(t, err)

	require.Equal(t, first, second)
	for _, entry := range second {
		assert.Equal(t, domain.PriorityHigh, entry.Priority)
	}
}

func TestValidator_PropertyMissingRequiredFieldFails(t *testing.T) {
	v := newTestValidator(false)
	fields := []string{"agents", "workflow", "actions", "data_flow"}

	rapid.Check(t, func(rt *rapid.T) {
		doc := mustDoc(rt, diagnosisGraph)

		removed := 0
		for _, field := range fields {
			if rapid.Bool().Draw(rt, "drop_"+field) {
				delete(doc, field)
				removed++
			}
		}

		first := v.Validate(doc)
		second := v.Validate(doc)
		if first != second {
			rt.Fatalf("validation is not deterministic: %v then %v", first, second)
		}
		if removed > 0 && first {
			rt.Fatalf("graph missing %d required fields was accepted", removed)
		}
		if removed == 0 && !first {
			rt.Fatalf("complete graph was rejected: %v", v.Check(doc))
		}
	})
}

func TestValidator_PropertyPriorityBands(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		confidence := rapid.Float64Range(0, 1).Draw(rt, "confidence")
		sc := &domain.SemanticContext{Intent: "diagnosis", Confidence: confidence}

		got := sc.Priority()
		switch {
		case confidence > 0.8 && got != domain.PriorityHigh:
			rt.Fatalf("confidence %v gave %s", confidence, got)
		case confidence < 0.5 && got != domain.PriorityLow:
			rt.Fatalf("confidence %v gave %s", confidence, got)
		case confidence >= 0.5 && confidence <= 0.8 && got != domain.PriorityMedium:
			rt.Fatalf("confidence %v gave %s", confidence, got)
		}
	})
}
