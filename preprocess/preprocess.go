package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/png"

	"github.com/chaos-io/rembg-cli/util"
)

const defaultThreshold = 0.8

var ErrNoForeground = errors.New("no foreground detected")

// Preprocessor 包在抠图调用前后的可选处理，全部关闭时字节原样透传
//
//	MaxSize: 最长边超过时先缩放再送去抠图
//	SkipTransparent: 输入已带有效 alpha 时跳过抠图
//	Crop: 抠图后按主体 bounding box 正方形居中裁剪
type Preprocessor struct {
	MaxSize         int
	SkipTransparent bool
	Crop            bool
	Threshold       float64
}

// Enabled 是否需要解码图片
func (p *Preprocessor) Enabled() bool {
	return p != nil && (p.MaxSize > 0 || p.SkipTransparent || p.Crop)
}

// Prepare 在抠图前处理输入；done 为 true 时返回值已是最终 PNG，无需再抠图
func (p *Preprocessor) Prepare(data []byte) (out []byte, done bool, err error) {
	if p == nil || (p.MaxSize <= 0 && !p.SkipTransparent) {
		return data, false, nil
	}

	img, _, err := util.DecodeImage(data)
	if err != nil {
		return nil, false, err
	}
	src := toNRGBA(img)

	if p.SkipTransparent && hasUsefulAlpha(src) {
		out, err := encodePNG(resizeWithinMax(src, p.MaxSize))
		return out, true, err
	}

	if p.MaxSize <= 0 || !exceedsMax(src, p.MaxSize) {
		return data, false, nil
	}

	out, err = encodePNG(resizeWithinMax(src, p.MaxSize))
	return out, false, err
}

// Finish 在抠图后处理输出
func (p *Preprocessor) Finish(data []byte) ([]byte, error) {
	if p == nil || !p.Crop {
		return data, nil
	}

	img, _, err := util.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	src := toNRGBA(img)

	threshold := p.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	bbox, err := alphaBBox(src, threshold)
	if err != nil {
		return nil, err
	}

	return encodePNG(cropSquare(src, bbox))
}

// alphaBBox 从 alpha 通道计算主体 bounding box
// 把 alpha > threshold * 255 的像素当作“主体”，找所有主体像素的坐标
func alphaBBox(img *image.NRGBA, threshold float64) (image.Rectangle, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	th := uint8(threshold * 255)

	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			if img.Pix[row+x*4+3] <= th {
				continue
			}
			found = true
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}

	if !found {
		return image.Rectangle{}, ErrNoForeground
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
