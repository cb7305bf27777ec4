package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AgentID     string
	AgentName   string
	PersonaFile string

	// Completion upstream
	LLMBaseURL       string
	LLMModel         string
	LLMFastModel     string
	LLMProxyURL      string
	LLMTimeout       time.Duration
	Credentials      []string
	CredentialPrefix string

	// Hive network
	HiveBaseURL string
	HiveTimeout time.Duration

	// Scheduling
	RunDuration       time.Duration
	ShutdownGrace     time.Duration
	HeartbeatInterval time.Duration
	HeartbeatChat     bool
	ResearchInterval  time.Duration
	SocialInterval    time.Duration
	ValidateInterval  time.Duration

	// Local HTTP surface; empty ListenAddr disables it.
	ListenAddr     string
	ServerToken    string
	RequestTimeout time.Duration

	// A2A
	A2AEnabled bool
	A2APort    int

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file, then flags with environment fallbacks.
func Load() *Config {
	_ = godotenv.Load()
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

// LoadFrom parses args into a Config using fs for flag registration.
func LoadFrom(fs *flag.FlagSet, args []string) *Config {
	cfg := &Config{}
	var tokens string

	fs.StringVar(&cfg.AgentID, "agent-id", getEnv("AGENT_ID", "p2pclaw-crypto-agent"), "Agent identifier on the hive network")
	fs.StringVar(&cfg.AgentName, "agent-name", getEnv("AGENT_NAME", "Nebula Crypto Specialist"), "Agent display name")
	fs.StringVar(&cfg.PersonaFile, "persona-file", getEnv("PERSONA_FILE", ""), "YAML file overriding the built-in persona prompts")

	fs.StringVar(&cfg.LLMBaseURL, "llm-base-url", getEnv("NIM_BASE_URL", "https://integrate.api.nvidia.com/v1"), "Completion API base URL or full endpoint URL")
	fs.StringVar(&cfg.LLMModel, "llm-model", getEnv("NIM_MODEL", getEnv("NVIDIA_MODEL", "nvidia/llama-3.3-nemotron-70b-instruct")), "Completion model identifier")
	fs.StringVar(&cfg.LLMFastModel, "llm-fast-model", getEnv("NIM_FAST_MODEL", ""), "Model used for latency-sensitive requests (default: same as --llm-model)")
	fs.StringVar(&cfg.LLMProxyURL, "llm-proxy-url", getEnv("NIM_PROXY_URL", ""), "HTTP/HTTPS proxy URL for completion requests")
	fs.DurationVar(&cfg.LLMTimeout, "llm-timeout", getEnvDuration("LLM_TIMEOUT", 120*time.Second), "Per-attempt completion timeout")
	fs.StringVar(&tokens, "llm-tokens", getEnv("NIM_TOKENS", ""), "Comma-separated completion credentials (NVIDIA_TOKEN_<n> are appended)")
	fs.StringVar(&cfg.CredentialPrefix, "credential-prefix", getEnv("CREDENTIAL_PREFIX", "nvapi-"), "Required credential prefix; empty accepts any")

	fs.StringVar(&cfg.HiveBaseURL, "hive-base-url", getEnv("P2P_API_BASE", "https://api-production-ff1b.up.railway.app"), "Hive network API base URL")
	fs.DurationVar(&cfg.HiveTimeout, "hive-timeout", getEnvDuration("HIVE_TIMEOUT", 60*time.Second), "Hive API request timeout")

	fs.DurationVar(&cfg.RunDuration, "run-duration", getEnvSeconds("RUN_DURATION", 19800*time.Second), "Total run time (0 runs until signalled)")
	fs.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", getEnvDuration("SHUTDOWN_GRACE", 10*time.Second), "Drain period after the run ends")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", getEnvDuration("HEARTBEAT_INTERVAL", time.Minute), "Heartbeat period (0 disables)")
	fs.BoolVar(&cfg.HeartbeatChat, "heartbeat-chat", getEnvBool("HEARTBEAT_CHAT", false), "Also post a HEARTBEAT line to the hive chat on each heartbeat")
	fs.DurationVar(&cfg.ResearchInterval, "research-interval", getEnvDuration("RESEARCH_INTERVAL", 30*time.Minute), "Research publish period (0 disables)")
	fs.DurationVar(&cfg.SocialInterval, "social-interval", getEnvDuration("SOCIAL_INTERVAL", time.Hour), "Social chat period (0 disables)")
	fs.DurationVar(&cfg.ValidateInterval, "validate-interval", getEnvDuration("VALIDATE_INTERVAL", 45*time.Minute), "Mempool validation period (0 disables)")

	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "Status/metrics listen address (empty disables)")
	fs.StringVar(&cfg.ServerToken, "server-token", getEnv("SERVER_TOKEN", ""), "Bearer token required on /v1 routes (empty disables the check)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 10*time.Minute), "Upper bound for one proxied completion, retries included")

	fs.BoolVar(&cfg.A2AEnabled, "a2a", getEnvBool("A2A_ENABLED", false), "Enable A2A server")
	fs.IntVar(&cfg.A2APort, "a2a-port", getEnvInt("A2A_PORT", 8000), "A2A server listen port")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "text|json")

	_ = fs.Parse(args)

	cfg.Credentials = ParseCredentials(tokens, numberedTokens(os.Environ()), cfg.CredentialPrefix)
	return cfg
}

// Validate reports configuration that would make the agent useless.
func (c *Config) Validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	if c.RunDuration < 0 || c.ShutdownGrace < 0 {
		return fmt.Errorf("run duration and shutdown grace must not be negative")
	}
	return nil
}

// ParseCredentials merges a comma-separated list with extra values, drops
// blanks, duplicates and values lacking prefix, and keeps first-seen order.
func ParseCredentials(list string, extra []string, prefix string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || !strings.HasPrefix(v, prefix) {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range strings.Split(list, ",") {
		add(v)
	}
	for _, v := range extra {
		add(v)
	}
	return out
}

// numberedTokens returns NVIDIA_TOKEN_<n> values ordered by n.
func numberedTokens(environ []string) []string {
	type entry struct {
		n int
		v string
	}
	var entries []entry
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(key, "NVIDIA_TOKEN_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		entries = append(entries, entry{n, val})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.v
	}
	return out
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvSeconds accepts either a bare number of seconds or a Go duration.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return getEnvDuration(key, fallback)
}
