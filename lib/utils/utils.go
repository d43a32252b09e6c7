package utils

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// RootPathEnv points the command line tool and unit tests at their conf dir
const RootPathEnv = "XNATIVE_ROOT_PATH"

var (
	rndLock sync.Mutex
	rnd     = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// FileIsExist reports whether the named file or directory exists.
func FileIsExist(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// GenPseudoUniqId generates an id that is not strictly unique, the chance of
// a collision is low enough for log ids.
func GenPseudoUniqId() uint64 {
	nano := time.Now().UnixNano()

	rndLock.Lock()
	randNum1 := rnd.Int63()
	randNum2 := rnd.Int63()
	shift1 := rnd.Intn(16) + 2
	shift2 := rnd.Intn(8) + 1
	rndLock.Unlock()

	uId := ((randNum1 >> uint(shift1)) + (randNum2 >> uint(shift2)) + (nano >> 1)) &
		0x1FFFFFFFFFFFFF
	return uint64(uId)
}

// GenLogId generates a log id.
func GenLogId() string {
	return fmt.Sprintf("%d_%d", time.Now().Unix(), GenPseudoUniqId())
}

// GetFuncCall returns file:line and function name of the caller at callDepth.
func GetFuncCall(callDepth int) (string, string) {
	pc, file, line, ok := runtime.Caller(callDepth)
	if !ok {
		return "???:0", "???"
	}

	f := runtime.FuncForPC(pc)
	_, function := path.Split(f.Name())
	_, filename := path.Split(file)

	fline := filename + ":" + strconv.Itoa(line)
	return fline, function
}

// GetRootPath returns the root dir configured by XNATIVE_ROOT_PATH with a
// trailing slash, or an empty string.
func GetRootPath() string {
	root := os.Getenv(RootPathEnv)
	if root == "" {
		return ""
	}
	if root[len(root)-1] != '/' {
		root += "/"
	}
	return root
}

// F prints byte slice data as hex string
func F(b []byte) string {
	return fmt.Sprintf("%x", b)
}
