package step

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/renderpass"
)

// G-buffer channels.
const (
	GPosition = iota
	GNormal
	GAlbedo
	GMaterial
	GBufferCount
)

// Attachment formats.
var (
	GBufferFormats = [GBufferCount]gpucore.Format{
		GPosition: gpucore.FormatRGBA32Float,
		GNormal:   gpucore.FormatRGBA16Float,
		GAlbedo:   gpucore.FormatRGBA8Unorm,
		GMaterial: gpucore.FormatRGBA8Unorm,
	}
	DepthFormat    = gpucore.FormatDepth32Float
	MomentsFormat  = gpucore.FormatRG32Float
	LightingFormat = gpucore.FormatRGBA16Float
)

// Attachment is an image with a view of all its layers.
type Attachment struct {
	Image  gpucore.ImageID
	View   gpucore.ImageViewID
	Format gpucore.Format
}

// Layered is an image array with an array view and one view per layer.
type Layered struct {
	Attachment
	Layers []gpucore.ImageViewID
}

// TargetConfig sizes the per-window targets.
type TargetConfig struct {
	Extent gpucore.Extent2D

	// ShadowSize is the edge length of a shadow map layer.
	ShadowSize uint32

	// ShadowLayers is the number of shadow map layers. Zero allocates one
	// so the shadow views stay bindable.
	ShadowLayers uint32

	// Splash is letterboxed into the splash image. Nil uses a black image.
	Splash image.Image

	// Families are the queue families of the graphics and compute queues.
	// The shadow moment images the blur pass reads and writes are shared
	// between them.
	Families []uint32
}

// Targets holds every image the steps render to or sample from, plus the
// shared sampler and the lighting pass that LocalLight loads into.
type Targets struct {
	drv gpucore.Driver
	cfg TargetConfig

	GBuffer  [GBufferCount]Attachment
	Depth    Attachment
	Lighting Attachment

	Moments     Layered
	Temp        Layered
	Blurred     Layered
	ShadowDepth Attachment

	// White is a 1x1 texture bound for materials without a texture.
	White  Attachment
	Splash Attachment

	Sampler gpucore.SamplerID

	// LightingLoad accumulates into the lighting target; LightingFB is its
	// framebuffer. Steps using it do not own it.
	LightingLoad *renderpass.RenderPass
	LightingFB   gpucore.FramebufferID

	images []gpucore.ImageID
	views  []gpucore.ImageViewID
}

// NewTargets creates the targets. On failure everything created so far is
// destroyed.
func NewTargets(drv gpucore.Driver, cfg TargetConfig) (t *Targets, err error) {
	if cfg.Extent.Empty() {
		return nil, errors.New("step: targets need a non-empty extent")
	}
	if cfg.ShadowSize == 0 {
		return nil, errors.New("step: shadow map size is zero")
	}
	cfg.ShadowLayers = max(cfg.ShadowLayers, 1)
	t = &Targets{drv: drv, cfg: cfg}
	defer func() {
		if err != nil {
			t.Destroy()
			t = nil
		}
	}()

	sampled := gpucore.ImageUsageSampled
	for i, f := range GBufferFormats {
		if t.GBuffer[i], err = t.attachment(fmt.Sprintf("gbuffer[%d]", i), cfg.Extent, f,
			gpucore.ImageUsageColorAttachment|sampled); err != nil {
			return t, err
		}
	}
	if t.Depth, err = t.attachment("depth", cfg.Extent, DepthFormat,
		gpucore.ImageUsageDepthStencilAttachment|sampled); err != nil {
		return t, err
	}
	if t.Lighting, err = t.attachment("lighting", cfg.Extent, LightingFormat,
		gpucore.ImageUsageColorAttachment|sampled); err != nil {
		return t, err
	}

	shadow := gpucore.Extent2D{Width: cfg.ShadowSize, Height: cfg.ShadowSize}
	if t.Moments, err = t.layered("moments", shadow, gpucore.ImageUsageColorAttachment|sampled); err != nil {
		return t, err
	}
	if t.Temp, err = t.layered("blur temp", shadow, gpucore.ImageUsageStorage|sampled); err != nil {
		return t, err
	}
	if t.Blurred, err = t.layered("blurred", shadow, gpucore.ImageUsageStorage|sampled); err != nil {
		return t, err
	}
	if t.ShadowDepth, err = t.attachment("shadow depth", shadow, DepthFormat,
		gpucore.ImageUsageDepthStencilAttachment); err != nil {
		return t, err
	}

	one := gpucore.Extent2D{Width: 1, Height: 1}
	if t.White, err = t.attachment("white", one, gpucore.FormatRGBA8Unorm,
		sampled|gpucore.ImageUsageTransferDst); err != nil {
		return t, err
	}
	if err = drv.WriteImage(t.White.Image, 0, []byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		return t, fmt.Errorf("step: upload white texture: %w", err)
	}
	if t.Splash, err = t.attachment("splash", cfg.Extent, gpucore.FormatRGBA8Unorm,
		sampled|gpucore.ImageUsageTransferDst); err != nil {
		return t, err
	}
	if err = drv.WriteImage(t.Splash.Image, 0, Letterbox(cfg.Splash, cfg.Extent)); err != nil {
		return t, fmt.Errorf("step: upload splash image: %w", err)
	}

	if t.Sampler, err = drv.CreateSampler(&gpucore.SamplerDesc{
		Label:     "linear clamp",
		MagFilter: gpucore.FilterLinear,
		MinFilter: gpucore.FilterLinear,
		Address:   gpucore.AddressClampToEdge,
	}); err != nil {
		return t, fmt.Errorf("step: create sampler: %w", err)
	}

	if t.LightingLoad, err = lightingPass(drv, "lighting load", gpucore.LoadOpLoad,
		gpucore.LayoutColorAttachment, gpucore.LayoutColorAttachment); err != nil {
		return t, err
	}
	if t.LightingFB, err = drv.CreateFramebuffer(&gpucore.FramebufferDesc{
		Label:       "lighting",
		RenderPass:  t.LightingLoad.ID(),
		Attachments: []gpucore.ImageViewID{t.Lighting.View},
		Extent:      cfg.Extent,
		Layers:      1,
	}); err != nil {
		return t, fmt.Errorf("step: create lighting framebuffer: %w", err)
	}
	slogger().Debug("targets created", "extent", cfg.Extent, "shadowLayers", cfg.ShadowLayers)
	return t, nil
}

func (t *Targets) attachment(label string, e gpucore.Extent2D, f gpucore.Format, usage gpucore.ImageUsage) (Attachment, error) {
	img, err := t.drv.CreateImage(&gpucore.ImageDesc{Label: label, Extent: e, Layers: 1, Format: f, Usage: usage})
	if err != nil {
		return Attachment{}, fmt.Errorf("step: create %s image: %w", label, err)
	}
	t.images = append(t.images, img)
	aspect := gpucore.AspectColor
	if f.IsDepth() {
		aspect = gpucore.AspectDepth
	}
	v, err := t.drv.CreateImageView(&gpucore.ImageViewDesc{Label: label, Image: img, Format: f, Aspect: aspect})
	if err != nil {
		return Attachment{}, fmt.Errorf("step: create %s view: %w", label, err)
	}
	t.views = append(t.views, v)
	return Attachment{Image: img, View: v, Format: f}, nil
}

func (t *Targets) layered(label string, e gpucore.Extent2D, usage gpucore.ImageUsage) (Layered, error) {
	n := t.cfg.ShadowLayers
	img, err := t.drv.CreateImage(&gpucore.ImageDesc{
		Label:    label,
		Extent:   e,
		Layers:   n,
		Format:   MomentsFormat,
		Usage:    usage,
		Families: t.cfg.Families,
	})
	if err != nil {
		return Layered{}, fmt.Errorf("step: create %s image: %w", label, err)
	}
	t.images = append(t.images, img)
	l := Layered{Attachment: Attachment{Image: img, Format: MomentsFormat}}
	if l.View, err = t.view(label, img, 0, n, true); err != nil {
		return Layered{}, err
	}
	for i := range n {
		v, err := t.view(fmt.Sprintf("%s[%d]", label, i), img, i, 1, false)
		if err != nil {
			return Layered{}, err
		}
		l.Layers = append(l.Layers, v)
	}
	return l, nil
}

func (t *Targets) view(label string, img gpucore.ImageID, base, count uint32, array bool) (gpucore.ImageViewID, error) {
	v, err := t.drv.CreateImageView(&gpucore.ImageViewDesc{
		Label:      label,
		Image:      img,
		Format:     MomentsFormat,
		Aspect:     gpucore.AspectColor,
		BaseLayer:  base,
		LayerCount: count,
		Array:      array,
	})
	if err != nil {
		return 0, fmt.Errorf("step: create %s view: %w", label, err)
	}
	t.views = append(t.views, v)
	return v, nil
}

// Extent returns the window extent the targets were sized for.
func (t *Targets) Extent() gpucore.Extent2D { return t.cfg.Extent }

// ShadowSize returns the shadow map edge length.
func (t *Targets) ShadowSize() uint32 { return t.cfg.ShadowSize }

// ShadowLayers returns the number of shadow map layers.
func (t *Targets) ShadowLayers() uint32 { return t.cfg.ShadowLayers }

// Destroy releases everything. It is safe to call on partially built
// targets and more than once.
func (t *Targets) Destroy() {
	if t.LightingFB != gpucore.InvalidID {
		t.drv.DestroyFramebuffer(t.LightingFB)
		t.LightingFB = gpucore.InvalidID
	}
	if t.LightingLoad != nil {
		t.LightingLoad.Destroy()
		t.LightingLoad = nil
	}
	if t.Sampler != gpucore.InvalidID {
		t.drv.DestroySampler(t.Sampler)
		t.Sampler = gpucore.InvalidID
	}
	for _, v := range t.views {
		t.drv.DestroyImageView(v)
	}
	for _, img := range t.images {
		t.drv.DestroyImage(img)
	}
	t.views, t.images = nil, nil
}

// Letterbox scales src into an extent-sized RGBA8 image, preserving its
// aspect ratio and centering it on black. A nil src yields black.
func Letterbox(src image.Image, e gpucore.Extent2D) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, int(e.Width), int(e.Height)))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	if src == nil || src.Bounds().Empty() {
		return dst.Pix
	}
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	w, h := int(e.Width), int(e.Height)
	// Fit the longer relative side.
	if sw*h > sh*w {
		h = max(1, sh*w/sw)
	} else {
		w = max(1, sw*h/sh)
	}
	x := (int(e.Width) - w) / 2
	y := (int(e.Height) - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, sb, draw.Over, nil)
	return dst.Pix
}
