package report

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ecodoppler/tsa/internal/domain/exam"
)

const (
	// SecondaryCaptureSOPClass is the Secondary Capture Image Storage SOP class.
	SecondaryCaptureSOPClass = "1.2.840.10008.5.1.4.1.1.7"
	explicitVRLittleEndian   = "1.2.840.10008.1.2.1"
	implementationClassUID   = "2.25.99187416722790310498116361270411845281"

	dicomColumns    = 100
	dicomMargin     = 24
	dicomLineHeight = 16
)

// DICOMOptions carries identifiers that do not live in the exam record.
type DICOMOptions struct {
	PatientID        string
	StudyInstanceUID string
	// Now stamps the instance creation date; nil means time.Now.
	Now func() time.Time
}

// WriteDICOM writes the report as a DICOM Secondary Capture object: the
// plain-text report rasterised into an 8-bit greyscale frame, tagged with
// the patient and study attributes so it can be filed next to the images.
func WriteDICOM(w io.Writer, rec *exam.ExamRecord, opts DICOMOptions) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	studyUID := opts.StudyInstanceUID
	if studyUID == "" {
		studyUID = NewUID()
	}
	sopInstanceUID := NewUID()

	var text bytes.Buffer
	if err := WriteText(&text, Render(rec)); err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	img := rasterize(wrapLines(text.String(), dicomColumns))
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	nativeFrame := frame.NewNativeFrame[uint8](8, height, width, width*height, 1)
	copy(nativeFrame.RawData, img.Pix)

	created := now()
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{SecondaryCaptureSOPClass}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}),
		mustNewElement(tag.ImplementationClassUID, []string{implementationClassUID}),

		mustNewElement(tag.SOPClassUID, []string{SecondaryCaptureSOPClass}),
		mustNewElement(tag.SOPInstanceUID, []string{sopInstanceUID}),
		mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
		mustNewElement(tag.SeriesInstanceUID, []string{NewUID()}),
		mustNewElement(tag.InstanceCreationDate, []string{created.Format("20060102")}),
		mustNewElement(tag.InstanceCreationTime, []string{created.Format("150405")}),
		mustNewElement(tag.PatientName, []string{rec.PatientName}),
		mustNewElement(tag.PatientID, []string{opts.PatientID}),
		mustNewElement(tag.PatientBirthDate, []string{dicomDate(rec.BirthDate)}),
		mustNewElement(tag.StudyDate, []string{dicomDate(rec.ExamDate)}),
		mustNewElement(tag.StudyDescription, []string{Title}),
		mustNewElement(tag.PerformingPhysicianName, []string{rec.DoctorName}),
		mustNewElement(tag.Modality, []string{"OT"}),
		mustNewElement(tag.ConversionType, []string{"WSD"}),
		mustNewElement(tag.SeriesNumber, []string{"1"}),
		mustNewElement(tag.InstanceNumber, []string{"1"}),

		mustNewElement(tag.Rows, []int{height}),
		mustNewElement(tag.Columns, []int{width}),
		mustNewElement(tag.BitsAllocated, []int{8}),
		mustNewElement(tag.BitsStored, []int{8}),
		mustNewElement(tag.HighBit, []int{7}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: nativeFrame}},
		}),
	}}

	if err := dicom.Write(w, ds); err != nil {
		return fmt.Errorf("write dicom: %w", err)
	}
	return nil
}

// NewUID returns a UUID-derived DICOM UID under the 2.25 root.
func NewUID() string {
	u := uuid.New()
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func dicomDate(iso string) string {
	t, err := time.Parse(exam.DateLayout, iso)
	if err != nil {
		return ""
	}
	return t.Format("20060102")
}

// rasterize draws lines in black on a white page using the fixed 7x13 face.
func rasterize(lines []string) *image.Gray {
	face := basicfont.Face7x13
	width := dicomColumns*face.Advance + 2*dicomMargin
	height := len(lines)*dicomLineHeight + 2*dicomMargin

	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Src: image.Black, Face: face}
	for i, line := range lines {
		drawer.Dot = fixed.P(dicomMargin, dicomMargin+(i+1)*dicomLineHeight-face.Descent)
		drawer.DrawString(line)
	}
	return img
}

// wrapLines splits text into lines no longer than width runes, breaking on
// spaces where possible.
func wrapLines(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		runes := []rune(para)
		for len(runes) > width {
			cut := width
			for i := width; i > width/2; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
			out = append(out, string(runes[:cut]))
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		out = append(out, string(runes))
	}
	return out
}
