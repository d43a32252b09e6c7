// Package all links every built-in native contract into the binary. Import it
// for side effects before calling native.NewDefaultFactory.
package all

import (
	_ "github.com/xuperchain/xnative/bcs/contract/native/crosschain"
	_ "github.com/xuperchain/xnative/bcs/contract/native/privacy"
	_ "github.com/xuperchain/xnative/bcs/contract/native/storage"
)
