package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhengjr9/hive-agent/internal/hive"
	"github.com/zhengjr9/hive-agent/internal/llm"
)

const (
	socialPaperCount   = 3
	socialMaxTokens    = 250
	mempoolLimit       = 20
	reviewsPerRun      = 3
	verdictMaxTokens   = 120
	verdictTemperature = 0.2
	defaultOccamScore  = 0.85
	// maxReviewChars bounds how much paper text goes into a review prompt.
	maxReviewChars = 6000
)

func (a *Agent) heartbeat(ctx context.Context) error {
	ack, err := a.hive.QuickJoin(ctx, a.cfg.Persona.Interests)
	if err != nil {
		return fmt.Errorf("quick-join: %w", err)
	}
	if !ack.Success {
		a.logger.Warn("quick-join not accepted", "error", ack.Error, "message", ack.Message)
	}
	if !a.cfg.ChatHeartbeat {
		return nil
	}
	return a.hive.Heartbeat(ctx, a.cfg.Persona.InvestigationID)
}

func (a *Agent) research(ctx context.Context) error {
	p := a.cfg.Persona
	a.logger.Info("starting research task")

	content, err := a.llm.Complete(ctx, llm.NewRequest(llm.System(p.SystemPrompt), llm.User(p.ResearchPrompt)))
	if err != nil {
		return fmt.Errorf("generate research: %w", err)
	}

	ack, err := a.hive.PublishPaper(ctx, hive.Paper{
		Title:           fmt.Sprintf("%s: %s", p.ResearchTitle, a.now().UTC().Format(time.RFC3339)),
		Content:         content,
		InvestigationID: p.InvestigationID,
		Author:          a.cfg.AgentName,
		AgentID:         a.cfg.AgentID,
		Tier:            "final",
	})
	if err != nil {
		return fmt.Errorf("publish paper: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("publish paper not accepted: %s", ack.Error)
	}
	a.logger.Info("research paper published", "paper_id", ack.ID)

	if _, err := a.hive.Chat(ctx, p.PublishedNotice); err != nil {
		return fmt.Errorf("post publish notice: %w", err)
	}
	return nil
}

func (a *Agent) social(ctx context.Context) error {
	p := a.cfg.Persona
	papers, err := a.hive.LatestPapers(ctx, socialPaperCount)
	if err != nil {
		return fmt.Errorf("latest papers: %w", err)
	}
	titles := make([]string, 0, len(papers))
	for _, paper := range papers {
		titles = append(titles, paper.Title)
	}

	req := llm.NewRequest(llm.System(p.SystemPrompt), llm.User(p.Social(titles)))
	req.MaxTokens = socialMaxTokens
	msg, err := a.llm.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("generate chat: %w", err)
	}
	if _, err := a.hive.Chat(ctx, p.ChatTag+" "+msg); err != nil {
		return fmt.Errorf("post chat: %w", err)
	}
	return nil
}

// validate reviews a few mempool papers written by other agents and submits
// a verdict for each. Papers are reviewed at most once per process.
func (a *Agent) validate(ctx context.Context) error {
	papers, err := a.hive.Mempool(ctx, mempoolLimit)
	if err != nil {
		return fmt.Errorf("mempool: %w", err)
	}

	var errs []error
	reviewed := 0
	for _, paper := range papers {
		if reviewed >= reviewsPerRun {
			break
		}
		if paper.ID == "" || paper.AgentID == a.cfg.AgentID || a.reviewed[paper.ID] {
			continue
		}
		reviewed++
		if err := a.review(ctx, paper); err != nil {
			errs = append(errs, fmt.Errorf("paper %s: %w", paper.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) review(ctx context.Context, paper hive.Paper) error {
	p := a.cfg.Persona
	content := truncate(paper.Content, maxReviewChars)

	req := llm.NewRequest(llm.System(p.SystemPrompt), llm.User(p.Validation(paper.Title, content)))
	req.MaxTokens = verdictMaxTokens
	req.Temperature = verdictTemperature
	req.Fast = true
	text, err := a.llm.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("generate verdict: %w", err)
	}

	approve, score, ok := ParseVerdict(text)
	if !ok {
		return fmt.Errorf("unparseable verdict %q", firstLine(text))
	}
	ack, err := a.hive.ValidatePaper(ctx, paper.ID, approve, score)
	if err != nil {
		return fmt.Errorf("submit verdict: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("verdict not accepted: %s", ack.Error)
	}
	a.reviewed[paper.ID] = true

	verdict := "reject"
	if approve {
		verdict = "approve"
	}
	PapersValidatedTotal.WithLabelValues(verdict).Inc()
	a.logger.Info("paper validated", "paper_id", paper.ID, "verdict", verdict, "occam_score", score)
	return nil
}

// ParseVerdict reads an APPROVE/REJECT keyword and an optional "SCORE: x"
// line from a model reply. The score is clamped to [0,1] and defaults to
// 0.85. ok is false when no keyword is found.
func ParseVerdict(text string) (approve bool, score float64, ok bool) {
	score = defaultOccamScore
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if !ok {
			ai := strings.Index(line, "APPROVE")
			ri := strings.Index(line, "REJECT")
			switch {
			case ai >= 0 && (ri < 0 || ai < ri):
				approve, ok = true, true
			case ri >= 0:
				approve, ok = false, true
			}
		}
		if rest, found := strings.CutPrefix(line, "SCORE"); found {
			rest = strings.TrimSpace(strings.TrimLeft(rest, ": ="))
			if f := strings.Fields(rest); len(f) > 0 {
				if v, err := strconv.ParseFloat(f[0], 64); err == nil {
					score = min(max(v, 0), 1)
				}
			}
		}
	}
	return approve, score, ok
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return truncate(line, 80)
}
