// Package persona holds the prompt text and identity details the agent
// speaks with. Defaults describe a cryptography research specialist; a YAML
// file may override any field.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Persona struct {
	SystemPrompt    string `yaml:"system_prompt"`
	Interests       string `yaml:"interests"`
	InvestigationID string `yaml:"investigation_id"`
	// ChatTag prefixes social messages, e.g. "[Nebula Crypto]".
	ChatTag          string `yaml:"chat_tag"`
	AnnounceMessage  string `yaml:"announce_message"`
	ResearchPrompt   string `yaml:"research_prompt"`
	ResearchTitle    string `yaml:"research_title"`
	PublishedNotice  string `yaml:"published_notice"`
	SocialPrompt     string `yaml:"social_prompt"`
	ValidationPrompt string `yaml:"validation_prompt"`
}

const defaultSystemPrompt = `You are a Research Agent joining the P2PCLAW Hive Mind (https://www.p2pclaw.com/silicon).
Your specialty is CRYPTOGRAPHY, SECURITY PROTOCOLS, and CYBER-OFFENSIVE/DEFENSIVE STRATEGIES.

1. ACCESS DATA: Read the latest briefing at: https://www.p2pclaw.com/silicon
2. COORDINATE: Use /chat to update the hive.
3. PUBLISH: Share technical insights on encryption, zero-knowledge proofs, and blockchain security.

Mission: Collaborative decentralized research. Maintain a high-security, technical, and analytical persona. Focus on post-quantum security and AGI-driven cryptographic breakthroughs.`

// Default returns the built-in cryptography specialist persona.
func Default() Persona {
	return Persona{
		SystemPrompt:    defaultSystemPrompt,
		Interests:       "cryptography, zkp, post-quantum security, encryption, blockchain security, distributed ledgers",
		InvestigationID: "inv-crypto",
		ChatTag:         "[Nebula Crypto]",
		AnnounceMessage: "Secure communication channels established. Ready to analyze the Hive's cryptographic integrity.",
		ResearchPrompt: "Propose a new advancement in zero-knowledge proofs or post-quantum cryptography. " +
			"Provide a technical analysis of a potential vulnerability in common encryption standards.",
		ResearchTitle:   "Cryptographic Research Report",
		PublishedNotice: "[Crypto Insight] Published a new analysis on cryptographic security.",
		SocialPrompt: "Recent Hive papers: %s. Select one and discuss its security implications " +
			"or how cryptography can protect these specific research findings.",
		ValidationPrompt: "Review the following research paper submitted to the Hive.\n\n" +
			"Title: %s\n\n%s\n\n" +
			"Answer with exactly two lines. First line: APPROVE or REJECT. " +
			"Second line: SCORE: <a number between 0 and 1 rating rigor and parsimony>.",
	}
}

// Load reads a YAML persona file on top of Default. Empty fields in the
// file keep their default values. An empty path returns Default.
func Load(path string) (Persona, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read persona %s: %w", path, err)
	}
	var override Persona
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse persona %s: %w", path, err)
	}
	p.merge(override)
	return p, nil
}

func (p *Persona) merge(o Persona) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.SystemPrompt, o.SystemPrompt)
	set(&p.Interests, o.Interests)
	set(&p.InvestigationID, o.InvestigationID)
	set(&p.ChatTag, o.ChatTag)
	set(&p.AnnounceMessage, o.AnnounceMessage)
	set(&p.ResearchPrompt, o.ResearchPrompt)
	set(&p.ResearchTitle, o.ResearchTitle)
	set(&p.PublishedNotice, o.PublishedNotice)
	set(&p.SocialPrompt, o.SocialPrompt)
	set(&p.ValidationPrompt, o.ValidationPrompt)
}

// Social renders the social prompt for the given paper titles.
func (p Persona) Social(titles []string) string {
	quoted := make([]string, len(titles))
	for i, t := range titles {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf(p.SocialPrompt, "["+strings.Join(quoted, ", ")+"]")
}

// Validation renders the review prompt for one paper.
func (p Persona) Validation(title, content string) string {
	return fmt.Sprintf(p.ValidationPrompt, title, content)
}

// Announce returns the online message posted at startup.
func (p Persona) Announce(agentName string) string {
	return fmt.Sprintf("[%s Online] %s", agentName, p.AnnounceMessage)
}
