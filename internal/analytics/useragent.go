package analytics

import (
	"strings"

	"github.com/pagedrop/pagedrop/internal/model"
)

// UserAgentInfo is the best-effort classification of a user agent.
type UserAgentInfo struct {
	Browser    string
	OS         string
	DeviceType string
	IsBot      bool
	BotName    string
}

type namedPattern struct {
	pattern string
	name    string
}

// knownBots is checked in order; specific crawlers come before the generic
// "bot"/"crawler"/"spider" catch-alls.
var knownBots = []namedPattern{
	{"googlebot", "Googlebot"},
	{"adsbot-google", "AdsBot-Google"},
	{"mediapartners-google", "Mediapartners-Google"},
	{"bingbot", "Bingbot"},
	{"yandexbot", "YandexBot"},
	{"baiduspider", "Baiduspider"},
	{"duckduckbot", "DuckDuckBot"},
	{"slurp", "Yahoo Slurp"},
	{"applebot", "Applebot"},
	{"facebookexternalhit", "Facebook"},
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedInBot"},
	{"slackbot", "Slackbot"},
	{"discordbot", "Discordbot"},
	{"telegrambot", "TelegramBot"},
	{"whatsapp", "WhatsApp"},
	{"ahrefsbot", "AhrefsBot"},
	{"semrushbot", "SemrushBot"},
	{"mj12bot", "MJ12bot"},
	{"dotbot", "DotBot"},
	{"petalbot", "PetalBot"},
	{"gptbot", "GPTBot"},
	{"claudebot", "ClaudeBot"},
	{"ccbot", "CCBot"},
	{"bytespider", "Bytespider"},
	{"chrome-lighthouse", "Lighthouse"},
	{"lighthouse", "Lighthouse"},
	{"pagespeed", "PageSpeed Insights"},
	{"pingdom", "Pingdom"},
	{"uptimerobot", "UptimeRobot"},
	{"headlesschrome", "HeadlessChrome"},
	{"phantomjs", "PhantomJS"},
	{"prerender", "Prerender"},
	{"screaming frog", "Screaming Frog"},
	{"curl/", "curl"},
	{"wget/", "Wget"},
	{"python-requests", "python-requests"},
	{"python-urllib", "Python-urllib"},
	{"go-http-client", "Go-http-client"},
	{"okhttp", "okhttp"},
	{"axios/", "axios"},
	{"node-fetch", "node-fetch"},
	{"java/", "Java"},
	{"crawler", "Generic Crawler"},
	{"spider", "Generic Spider"},
	{"bot", "Generic Bot"},
}

// browsers is checked in order; Chromium derivatives must precede Chrome and
// Chrome must precede Safari.
var browsers = []namedPattern{
	{"edg/", "Edge"},
	{"edga/", "Edge"},
	{"edgios/", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"samsungbrowser", "Samsung Internet"},
	{"yabrowser", "Yandex Browser"},
	{"vivaldi", "Vivaldi"},
	{"brave", "Brave"},
	{"firefox", "Firefox"},
	{"fxios", "Firefox"},
	{"crios", "Chrome"},
	{"chromium", "Chromium"},
	{"chrome", "Chrome"},
	{"msie", "Internet Explorer"},
	{"trident/", "Internet Explorer"},
	{"safari", "Safari"},
}

var operatingSystems = []namedPattern{
	{"windows phone", "Windows Phone"},
	{"windows", "Windows"},
	{"iphone", "iOS"},
	{"ipod", "iOS"},
	{"ipad", "iPadOS"},
	{"android", "Android"},
	{"cros", "ChromeOS"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"linux", "Linux"},
	{"freebsd", "FreeBSD"},
}

// ClassifyUserAgent detects bots and extracts browser, OS and device type.
// An empty user agent is treated as an unnamed bot.
func ClassifyUserAgent(userAgent string) UserAgentInfo {
	ua := strings.ToLower(strings.TrimSpace(userAgent))

	info := UserAgentInfo{
		Browser:    "unknown",
		OS:         "unknown",
		DeviceType: model.DeviceUnknown,
	}

	if ua == "" {
		info.IsBot = true
		info.BotName = "Unknown"
		info.DeviceType = model.DeviceBot
		return info
	}

	if name, ok := match(ua, knownBots); ok {
		info.IsBot = true
		info.BotName = name
	}

	if name, ok := match(ua, browsers); ok {
		info.Browser = name
	}
	if name, ok := match(ua, operatingSystems); ok {
		info.OS = name
	}

	switch {
	case info.IsBot:
		info.DeviceType = model.DeviceBot
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		info.DeviceType = model.DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "windows phone"):
		info.DeviceType = model.DeviceMobile
	case info.OS != "unknown":
		info.DeviceType = model.DeviceDesktop
	}

	return info
}

func match(ua string, patterns []namedPattern) (string, bool) {
	for _, p := range patterns {
		if strings.Contains(ua, p.pattern) {
			return p.name, true
		}
	}
	return "", false
}
