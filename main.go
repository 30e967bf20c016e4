package main

import (
	"github.com/dylanowen/archi-zoom/azcli"
	"oss.terrastruct.com/util-go/xmain"
)

func main() {
	xmain.Main(azcli.Run)
}
