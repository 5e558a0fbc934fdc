package browser

import (
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
)

// DefaultAllocatorOptions builds the exec allocator flags for a launch. The
// stock chromedp defaults are kept except for the automation switch, which
// leaks navigator.webdriver.
func DefaultAllocatorOptions(opts LaunchOptions, userAgent string) []chromedp.ExecAllocatorOption {
	allocOpts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+8)
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		allocOpts = append(allocOpts, opt)
	}
	allocOpts = append(allocOpts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.DisableGPU,
	)
	if runtime.GOOS == "linux" {
		allocOpts = append(allocOpts, chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(userAgent))
	}
	for _, arg := range opts.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			allocOpts = append(allocOpts, chromedp.Flag(key, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(key, true))
		}
	}
	return allocOpts
}
