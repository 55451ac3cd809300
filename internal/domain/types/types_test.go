package types_test

import (
	"testing"

	types "github.com/okian/rankd/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntries(t *testing.T) {
	Convey("Given a page of ranking members", t, func() {
		members := []types.Member{
			{ID: "10", Value: 900.5},
			{ID: "3", Value: 800},
			{ID: "7", Value: 800},
		}

		Convey("When converting the first page", func() {
			entries := types.Entries(members, 0)

			Convey("Then ranks start at one and follow the page order", func() {
				So(entries, ShouldHaveLength, 3)
				for i, e := range entries {
					So(e.Rank, ShouldEqual, i+1)
				}
				So(entries[0].PlayerID, ShouldEqual, int64(10))
				So(entries[0].Value, ShouldEqual, 900.5)
			})
		})

		Convey("When converting a later page", func() {
			entries := types.Entries(members, 50)

			Convey("Then ranks continue from the offset", func() {
				So(entries[0].Rank, ShouldEqual, 51)
				So(entries[2].Rank, ShouldEqual, 53)
			})
		})

		Convey("When a member is not a player id", func() {
			entries := types.Entries(append([]types.Member{{ID: "ghost", Value: 1000}}, members...), 0)

			Convey("Then it is skipped without consuming a rank", func() {
				So(entries, ShouldHaveLength, 3)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[0].PlayerID, ShouldEqual, int64(10))
			})
		})

		Convey("When the page is empty", func() {
			So(types.Entries(nil, 0), ShouldBeEmpty)
		})
	})

	Convey("Given a player id", t, func() {
		So(types.MemberID(1234), ShouldEqual, "1234")
	})
}
