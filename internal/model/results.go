package model

import "time"

// Method records which path produced a result.
type Method string

const (
	MethodRules    Method = "rules"
	MethodExternal Method = "external"
)

type ClassificationResult struct {
	Intent          Intent   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning,omitempty"`
	KeywordsMatched []string `json:"keywords_matched,omitempty"`
	Method          Method   `json:"method"`
}

type ExtractionResult struct {
	CompanyName    string   `json:"company_name,omitempty"`
	JobTitle       string   `json:"job_title,omitempty"`
	ContactName    string   `json:"contact_name,omitempty"`
	ContactEmail   string   `json:"contact_email,omitempty"`
	Location       string   `json:"location,omitempty"`
	DateMentioned  string   `json:"date_mentioned,omitempty"`
	StatusKeywords []string `json:"status_keywords,omitempty"`
	Confidence     float64  `json:"confidence"`
	Method         Method   `json:"method"`
	Details        Details  `json:"details"`
}

// Details holds the secondary facts pulled from a message.
type Details struct {
	Salary           string     `json:"salary,omitempty"`
	InterviewDate    *time.Time `json:"interview_date,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	JobReference     string     `json:"job_reference,omitempty"`
	Urgency          Urgency    `json:"urgency"`
	TechKeywords     []string   `json:"tech_keywords,omitempty"`
}

type MatchCandidate struct {
	ApplicationID int64    `json:"application_id"`
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	Reasons       []string `json:"reasons"`
	CompanyMatch  bool     `json:"company_match"`
	TitleMatch    bool     `json:"title_match"`
	SemanticMatch bool     `json:"semantic_match"`
}
