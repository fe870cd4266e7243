package remover

import (
	"path/filepath"
	"strings"
)

const NoBackgroundDir = "no_background"

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".tiff": {},
	".webp": {},
}

// splitName 拆分文件名；以点开头且没有其他点的名字（如 .png）没有扩展名
func splitName(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i:]
}

// IsImageFile 扩展名是否在支持列表中（忽略大小写）
func IsImageFile(name string) bool {
	_, ext := splitName(filepath.Base(name))
	_, ok := imageExtensions[strings.ToLower(ext)]
	return ok
}

// DefaultOutputPath <父目录>/<文件名主干>.png
func DefaultOutputPath(input string) string {
	return OutputPathIn(filepath.Dir(input), input)
}

// OutputPathIn <dir>/<文件名主干>.png
func OutputPathIn(dir, input string) string {
	stem, _ := splitName(filepath.Base(input))
	return filepath.Join(dir, stem+".png")
}

// DefaultOutputDir <输入目录>/no_background
func DefaultOutputDir(inputDir string) string {
	return filepath.Join(inputDir, NoBackgroundDir)
}
