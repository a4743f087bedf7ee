// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "opsagent/pkg/channels/telegram"
	_ "opsagent/pkg/channels/web"
)
