package events

import (
	"encoding/json"
	"fmt"
)

// structToMap converts a typed payload to the generic Data map via a
// JSON round trip so field names match the persisted form.
func structToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mapToStruct converts the generic Data map back into a typed payload.
func mapToStruct(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// SetStateTransitionData sets the Data field from a typed payload.
func (e *AgentEvent) SetStateTransitionData(data StateTransitionData) error {
	m, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert StateTransitionData: %w", err)
	}
	e.Data = m
	return nil
}

// GetStateTransitionData parses the typed payload back out of Data.
func (e *AgentEvent) GetStateTransitionData() (*StateTransitionData, error) {
	var data StateTransitionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse StateTransitionData: %w", err)
	}
	return &data, nil
}

// SetArticleData sets the Data field from a typed payload.
func (e *AgentEvent) SetArticleData(data ArticleData) error {
	m, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ArticleData: %w", err)
	}
	e.Data = m
	return nil
}

// GetArticleData parses the typed payload back out of Data.
func (e *AgentEvent) GetArticleData() (*ArticleData, error) {
	var data ArticleData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ArticleData: %w", err)
	}
	return &data, nil
}

// SetReviewData sets the Data field from a typed payload.
func (e *AgentEvent) SetReviewData(data ReviewData) error {
	m, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReviewData: %w", err)
	}
	e.Data = m
	return nil
}

// GetReviewData parses the typed payload back out of Data.
func (e *AgentEvent) GetReviewData() (*ReviewData, error) {
	var data ReviewData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReviewData: %w", err)
	}
	return &data, nil
}

// SetAIUsageData sets the Data field from a typed payload.
func (e *AgentEvent) SetAIUsageData(data AIUsageData) error {
	m, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AIUsageData: %w", err)
	}
	e.Data = m
	return nil
}

// GetAIUsageData parses the typed payload back out of Data.
func (e *AgentEvent) GetAIUsageData() (*AIUsageData, error) {
	var data AIUsageData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AIUsageData: %w", err)
	}
	return &data, nil
}

// SetReleaseData sets the Data field from a typed payload.
func (e *AgentEvent) SetReleaseData(data ReleaseData) error {
	m, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReleaseData: %w", err)
	}
	e.Data = m
	return nil
}

// GetReleaseData parses the typed payload back out of Data.
func (e *AgentEvent) GetReleaseData() (*ReleaseData, error) {
	var data ReleaseData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReleaseData: %w", err)
	}
	return &data, nil
}
