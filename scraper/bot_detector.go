package scraper

import (
	"regexp"
	"strings"
)

// BlockVerdict is the result of scanning a rendered page for block-page markers
type BlockVerdict struct {
	Blocked bool
	Reason  string
	Score   float64
}

// BotDetector detects bot walls and CAPTCHAs
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)unfortunately we are unable`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)request (was )?blocked`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)security check`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)pardon our interruption`),
			regexp.MustCompile(`(?i)403 forbidden`),
			regexp.MustCompile(`접근이 (거부|차단)`),
			regexp.MustCompile(`비정상적인 (접근|트래픽)`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)are you a robot`),
			regexp.MustCompile(`(?i)not a robot`),
			regexp.MustCompile(`(?i)verify you are (a )?human`),
			regexp.MustCompile(`(?i)enter the characters you see below`),
			regexp.MustCompile(`보안\s*문자`),
			regexp.MustCompile(`자동\s*입력\s*방지`),
		},
	}
}

// Detect checks body text, title and URL. One CAPTCHA marker or two bot markers trip it.
func (bd *BotDetector) Detect(bodyText, title, pageURL string) BlockVerdict {
	content := strings.Join([]string{bodyText, title, pageURL}, " ")

	var reasons []string
	captchaHits, botHits := 0, 0
	score := 0.0

	for _, pattern := range bd.captchaPatterns {
		if pattern.MatchString(content) {
			captchaHits++
			score += 0.5
			reasons = append(reasons, "CAPTCHA detected: "+pattern.String())
		}
	}
	for _, pattern := range bd.botPatterns {
		if pattern.MatchString(content) {
			botHits++
			score += 0.3
			reasons = append(reasons, pattern.String())
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	return BlockVerdict{
		Blocked: captchaHits > 0 || botHits >= 2,
		Reason:  strings.Join(reasons, "; "),
		Score:   score,
	}
}
