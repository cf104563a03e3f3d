// Command siftcompare runs gosift and OpenCV SIFT on the same image and
// reports how many keypoints agree.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"

	"gosift/internal/config"
	siftimage "gosift/internal/image"
	"gosift/internal/sift"
	"gosift/pkg/geometry"
)

func main() {
	imagePath := flag.String("image", "", "Path to image (TIFF, PNG, JPEG or BMP)")
	tol := flag.Float64("tol", 1.5, "Match distance in pixels")
	octaves := flag.Int("octaves", 4, "Number of octaves")
	upscale := flag.Int("upscale", 1, "Upscale the input 2x (0 or 1)")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: siftcompare -image <path> [-tol 1.5] [-octaves 4] [-upscale 0|1]")
		os.Exit(1)
	}

	img, err := siftimage.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	b := img.Bounds()
	fmt.Printf("Loaded image: %dx%d pixels\n", b.Dx(), b.Dy())

	conf := config.Default()
	conf.Octaves = *octaves
	conf.Upscale = *upscale
	p, err := sift.New(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	defer p.Uninit()
	if err := p.Init(b.Dx(), b.Dy()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init pipeline: %v\n", err)
		os.Exit(1)
	}
	res, err := p.Execute(context.Background(), img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, img.Pix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Mat: %v\n", err)
		os.Exit(1)
	}
	defer mat.Close()
	detector := gocv.NewSIFT()
	defer detector.Close()
	ref := detector.Detect(mat)

	ours := make([]geometry.Point2D, len(res.Features))
	for i, f := range res.Features {
		ours[i] = f.Position
	}

	matched := 0
	var sumDist, sumScale float64
	for _, kp := range ref {
		pt := geometry.NewPoint2D(kp.X, kp.Y)
		best, bestDist := -1, math.Inf(1)
		for i, q := range ours {
			if d := pt.Distance(q); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 || bestDist > *tol {
			continue
		}
		matched++
		sumDist += bestDist
		// OpenCV reports the keypoint diameter.
		sumScale += res.Features[best].Sigma / (kp.Size / 2)
	}

	fmt.Printf("\n%-12s %10s\n", "Detector", "Keypoints")
	fmt.Printf("%-12s %10d\n", "gosift", len(ours))
	fmt.Printf("%-12s %10d\n", "opencv", len(ref))
	fmt.Printf("\nMatched within %.1f px: %d\n", *tol, matched)
	if matched > 0 {
		fmt.Printf("  Recall:         %.1f%%\n", 100*float64(matched)/float64(len(ref)))
		fmt.Printf("  Mean distance:  %.3f px\n", sumDist/float64(matched))
		fmt.Printf("  Mean sigma ratio: %.3f\n", sumScale/float64(matched))
	}
	fmt.Printf("Dropped candidates: %d\n", res.Dropped)
}
