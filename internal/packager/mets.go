package packager

import (
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/archivetools/aqc/internal/fileutils"
)

// mets.xml lives at the package root and, per SIP convention, a copy sits in
// data/metadata/ so it travels with the content.

type metsDoc struct {
	XMLName    xml.Name `xml:"mets:mets"`
	XMLNSMets  string   `xml:"xmlns:mets,attr"`
	XMLNSXlink string   `xml:"xmlns:xlink,attr"`
	XMLNSDC    string   `xml:"xmlns:dc,attr"`
	Type       string   `xml:"TYPE,attr"`

	Hdr       metsHdr   `xml:"mets:metsHdr"`
	DmdSec    dmdSec    `xml:"mets:dmdSec"`
	FileSec   fileSec   `xml:"mets:fileSec"`
	StructMap structMap `xml:"mets:structMap"`
}

type metsHdr struct {
	CreateDate string    `xml:"CREATEDATE,attr"`
	Agent      metsAgent `xml:"mets:agent"`
}

type metsAgent struct {
	Role string `xml:"ROLE,attr"`
	Type string `xml:"TYPE,attr"`
	Name string `xml:"mets:name"`
}

type dmdSec struct {
	ID      string  `xml:"ID,attr"`
	MdWrap  mdWrap  `xml:"mets:mdWrap"`
}

type mdWrap struct {
	MDType  string `xml:"MDTYPE,attr"`
	XMLData dcData `xml:"mets:xmlData"`
}

type dcData struct {
	Title      string `xml:"dc:title"`
	Identifier string `xml:"dc:identifier,omitempty"`
	Creator    string `xml:"dc:creator,omitempty"`
	Date       string `xml:"dc:date,omitempty"`
	Rights     string `xml:"dc:rights,omitempty"`
}

type fileSec struct {
	FileGrp fileGrp `xml:"mets:fileGrp"`
}

type fileGrp struct {
	Use   string     `xml:"USE,attr"`
	Files []metsFile `xml:"mets:file"`
}

type metsFile struct {
	ID      string   `xml:"ID,attr"`
	FLocat  flocat   `xml:"mets:FLocat"`
}

type flocat struct {
	LocType string `xml:"LOCTYPE,attr"`
	Href    string `xml:"xlink:href,attr"`
}

type structMap struct {
	Type string  `xml:"TYPE,attr"`
	Div  metsDiv `xml:"mets:div"`
}

type metsDiv struct {
	Type  string    `xml:"TYPE,attr"`
	Label string    `xml:"LABEL,attr,omitempty"`
	Divs  []metsDiv `xml:"mets:div,omitempty"`
	Fptrs []fptr    `xml:"mets:fptr,omitempty"`
}

type fptr struct {
	FileID string `xml:"FILEID,attr"`
}

// writeMETS builds the structural map from the object inventory and writes it
// to the package root and data/metadata.
func (p *Packager) writeMETS(objects []string, meta Metadata) error {
	doc := metsDoc{
		XMLNSMets:  "http://www.loc.gov/METS/",
		XMLNSXlink: "http://www.w3.org/1999/xlink",
		XMLNSDC:    "http://purl.org/dc/elements/1.1/",
		Type:       "SIP",
		Hdr: metsHdr{
			CreateDate: time.Now().Format(time.RFC3339),
			Agent: metsAgent{
				Role: "CREATOR",
				Type: "INDIVIDUAL",
				Name: meta.Technician,
			},
		},
		DmdSec: dmdSec{
			ID: "dmd-1",
			MdWrap: mdWrap{
				MDType: "DC",
				XMLData: dcData{
					Title:      meta.Title,
					Identifier: meta.Identifier,
					Creator:    meta.Technician,
					Date:       dateRange(meta.EventDateStart, meta.EventDateEnd),
					Rights:     meta.ConditionsGoverningAccess,
				},
			},
		},
		FileSec:   fileSec{FileGrp: fileGrp{Use: "objects"}},
		StructMap: structMap{Type: "physical", Div: metsDiv{Type: "package", Label: meta.PackageName}},
	}

	root := metsDiv{Type: "directory", Label: "objects"}
	for i, rel := range objects {
		id := fmt.Sprintf("file-%d", i+1)
		doc.FileSec.FileGrp.Files = append(doc.FileSec.FileGrp.Files, metsFile{
			ID:     id,
			FLocat: flocat{LocType: "OTHER", Href: rel},
		})
		root.Divs = append(root.Divs, metsDiv{
			Type:  "item",
			Label: path.Base(rel),
			Fptrs: []fptr{{FileID: id}},
		})
	}
	doc.StructMap.Div.Divs = []metsDiv{root}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode METS document: %v", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')

	targets := []string{
		filepath.Join(p.config.Dir, "mets.xml"),
		filepath.Join(p.metadataDir, "mets.xml"),
	}
	for _, t := range targets {
		if p.config.DryRun {
			p.log.Info("[dry-run] Would write METS", "file", t, "objects", len(objects))
			continue
		}
		if err := fileutils.AtomicWrite(t, data); err != nil {
			return fmt.Errorf("could not write %s: %v", t, err)
		}
		p.log.Info("Wrote METS", "file", t, "objects", len(objects))
	}
	return nil
}

func dateRange(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "" || start == end:
		return start
	case start == "":
		return end
	default:
		return start + "/" + end
	}
}
