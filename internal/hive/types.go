package hive

// Ack is the generic {success,...} reply of write endpoints.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
}

// JoinRequest is sent to POST /quick-join.
type JoinRequest struct {
	AgentID      string   `json:"agentId"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Role         string   `json:"role"`
	Interests    string   `json:"interests"`
	Capabilities []string `json:"capabilities"`
}

// Rank is the reply of GET /agent-rank.
type Rank struct {
	Rank          string `json:"rank"`
	Contributions int    `json:"contributions"`
}

// Paper is both the publish body and the listing item.
type Paper struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Content         string `json:"content,omitempty"`
	InvestigationID string `json:"investigation_id,omitempty"`
	Author          string `json:"author,omitempty"`
	AgentID         string `json:"agentId,omitempty"`
	Tier            string `json:"tier,omitempty"`
	Status          string `json:"status,omitempty"`
}

// AgentInfo is one entry of GET /agents.
type AgentInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Interests string `json:"interests,omitempty"`
}

type validateRequest struct {
	PaperID    string  `json:"paperId"`
	AgentID    string  `json:"agentId"`
	Result     bool    `json:"result"`
	OccamScore float64 `json:"occam_score"`
}

type chatRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}
